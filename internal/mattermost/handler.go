// Package mattermost serves the slash command webhook that fronts the bot.
//
// A request is authenticated against the shared command token, acknowledged
// at once with an in-channel "thinking" message, and answered later by a
// background job that posts to the request's response_url.
package mattermost

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oltiss/mattermost-bot/internal/app"
	"github.com/oltiss/mattermost-bot/internal/observe"
)

// Webhook outcomes recorded by [observe.Metrics.RecordWebhook].
const (
	OutcomeAccepted     = "accepted"
	OutcomeEmpty        = "empty"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeRejected     = "rejected"
)

// DefaultAckText is the acknowledgement template. The first %s is replaced
// with the query text.
const DefaultAckText = "🧠 Thinking... (Query: %s)"

// Submitter starts a background answer job. *app.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, utterance string, deliver app.DeliverFunc) (string, error)
}

// Option configures a [Handler].
type Option func(*Handler)

// WithToken sets the slash command token. An empty token disables the check.
func WithToken(token string) Option {
	return func(h *Handler) { h.token = token }
}

// WithAckText sets the acknowledgement template.
func WithAckText(text string) Option {
	return func(h *Handler) {
		if text != "" {
			h.ackText = text
		}
	}
}

// WithClient sets the client used to post answers to response_url.
func WithClient(c *Client) Option {
	return func(h *Handler) { h.client = c }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler is the slash command endpoint. It is safe for concurrent use.
type Handler struct {
	jobs    Submitter
	token   string
	ackText string
	client  *Client
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewHandler returns a Handler submitting queries to jobs.
func NewHandler(jobs Submitter, opts ...Option) *Handler {
	h := &Handler{
		jobs:    jobs,
		ackText: DefaultAckText,
	}
	for _, o := range opts {
		o(h)
	}
	if h.client == nil {
		h.client = NewClient()
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// Register adds the webhook routes to mux. Mattermost posts to whatever URL
// the command was configured with, so both /mattermost and / are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /mattermost", h)
	mux.Handle("POST /{$}", h)
}

// ServeHTTP handles one slash command invocation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.metrics.RecordWebhook(ctx, OutcomeBadRequest)
		writeJSON(w, http.StatusBadRequest, Ephemeral("Malformed request."))
		return
	}

	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.PostForm.Get("token")), []byte(h.token)) != 1 {
		h.metrics.RecordWebhook(ctx, OutcomeUnauthorized)
		h.log.Warn("mattermost: invalid token", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, Response{Text: "Invalid token"})
		return
	}

	text := strings.TrimSpace(r.PostForm.Get("text"))
	if text == "" {
		h.metrics.RecordWebhook(ctx, OutcomeEmpty)
		writeJSON(w, http.StatusOK, Ephemeral("Please provide a query."))
		return
	}

	user := r.PostForm.Get("user_name")
	channel := r.PostForm.Get("channel_name")
	responseURL := r.PostForm.Get("response_url")

	id, err := h.jobs.Submit(ctx, text, h.deliverTo(responseURL))
	if err != nil {
		h.metrics.RecordWebhook(ctx, OutcomeRejected)
		h.log.Error("mattermost: submit job", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorReply(err))
		return
	}

	h.metrics.RecordWebhook(ctx, OutcomeAccepted)
	h.log.Info("mattermost: query accepted",
		slog.String("job_id", id),
		slog.String("user", user),
		slog.String("channel", channel),
		slog.Bool("has_response_url", responseURL != ""),
	)
	writeJSON(w, http.StatusOK, InChannel(h.ack(text)))
}

func (h *Handler) ack(text string) string {
	return strings.Replace(h.ackText, "%s", text, 1)
}

// deliverTo returns the job callback that posts the outcome to responseURL.
// A failed post of an answer is followed by one attempt to post the error.
func (h *Handler) deliverTo(responseURL string) app.DeliverFunc {
	return func(ctx context.Context, answer string, err error) {
		log := observe.Logger(ctx)

		reply := InChannel(answer)
		if err != nil {
			reply = ErrorReply(err)
		}
		if responseURL == "" {
			log.Info("mattermost: no response_url, answer not delivered", "text", reply.Text)
			return
		}

		postErr := h.client.Post(ctx, responseURL, reply)
		if postErr == nil {
			log.Debug("mattermost: answer delivered", "response_type", reply.ResponseType)
			return
		}
		log.Error("mattermost: deliver answer", "err", postErr)
		if err != nil {
			return
		}
		if retryErr := h.client.Post(ctx, responseURL, ErrorReply(postErr)); retryErr != nil {
			log.Error("mattermost: deliver error reply", "err", retryErr)
		}
	}
}
