package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultPostTimeout bounds one delayed post to response_url.
const defaultPostTimeout = 10 * time.Second

// ErrDelivery is returned by [Client.Post] when Mattermost did not accept
// the post.
var ErrDelivery = errors.New("mattermost: delivery failed")

// Client posts delayed replies to the response_url of a slash command.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is used as-is.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithPostTimeout bounds each post. The default is 10 seconds.
func WithPostTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.timeout = d }
}

// NewClient returns a Client whose requests carry the trace context of the
// job that produced the reply.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: defaultPostTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Post sends resp as JSON to responseURL. It detaches from the cancellation
// of ctx, since a job whose deadline just passed must still report back.
func (c *Client) Post(ctx context.Context, responseURL string, resp Response) error {
	u, err := url.Parse(responseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid response_url %q", ErrDelivery, responseURL)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("mattermost: encode reply: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mattermost: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, res.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
