package mattermost

import (
	"encoding/json"
	"net/http"
)

// Response types understood by Mattermost slash commands.
const (
	ResponseInChannel = "in_channel"
	ResponseEphemeral = "ephemeral"
)

// Response is the JSON body of a slash command reply, both for the immediate
// HTTP response and for delayed posts to response_url.
type Response struct {
	ResponseType string `json:"response_type,omitempty"`
	Text         string `json:"text"`
}

// InChannel returns a reply visible to everyone in the channel.
func InChannel(text string) Response {
	return Response{ResponseType: ResponseInChannel, Text: text}
}

// Ephemeral returns a reply visible only to the user who ran the command.
func Ephemeral(text string) Response {
	return Response{ResponseType: ResponseEphemeral, Text: text}
}

// ErrorReply is the ephemeral reply for a request that produced no answer.
func ErrorReply(err error) Response {
	return Ephemeral("Error processing request: " + err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
