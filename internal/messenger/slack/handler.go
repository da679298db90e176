package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
)

// maxEventBody caps the Events API payload read before signature checks.
const maxEventBody = 1 << 20

// ResponseHandler receives operator replies posted in an alert thread.
type ResponseHandler interface {
	HandleResponse(ctx context.Context, threadID, answer string) error
}

// Handler processes Slack Events API webhooks.
type Handler struct {
	signingSecret string
	channelID     string
	responder     ResponseHandler
}

// NewHandler creates a new Slack webhook handler. Replies are only accepted
// from channelID; an empty channelID accepts any channel.
func NewHandler(signingSecret, channelID string, responder ResponseHandler) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		channelID:     channelID,
		responder:     responder,
	}
}

// slackEvent represents the outer envelope of Slack Events API payloads.
type slackEvent struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// innerEvent represents the inner event within an event_callback.
type innerEvent struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text"`
	User     string `json:"user"`
	BotID    string `json:"bot_id,omitempty"`
}

// HandleEvents is an http.HandlerFunc for POST /slack/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		log.Warn().Err(verifyErr).Msg("slack: rejected event")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var envelope slackEvent
	if unmarshalErr := json.Unmarshal(body, &envelope); unmarshalErr != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		h.handleURLVerification(w, envelope.Challenge)
		return
	case "event_callback":
		h.handleEventCallback(r.Context(), w, envelope.Event)
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleURLVerification responds to Slack's URL verification challenge.
func (h *Handler) handleURLVerification(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]string{"challenge": challenge}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		log.Error().Err(encodeErr).Msg("slack: encode url verification response")
	}
}

// handleEventCallback processes an event_callback payload.
func (h *Handler) handleEventCallback(ctx context.Context, w http.ResponseWriter, rawEvent json.RawMessage) {
	var evt innerEvent
	if unmarshalErr := json.Unmarshal(rawEvent, &evt); unmarshalErr != nil {
		http.Error(w, "invalid event JSON", http.StatusBadRequest)
		return
	}

	// Only handle threaded human messages.
	if evt.Type != "message" || evt.ThreadTS == "" || evt.BotID != "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.channelID != "" && evt.Channel != h.channelID {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Slack retries on non-2xx, so dispatch failures are logged rather than returned.
	if respondErr := h.responder.HandleResponse(ctx, evt.ThreadTS, evt.Text); respondErr != nil {
		log.Error().Err(respondErr).Str("thread_ts", evt.ThreadTS).Str("slack_user", evt.User).Msg("slack: dispatch thread reply")
	} else {
		log.Info().Str("thread_ts", evt.ThreadTS).Str("slack_user", evt.User).Msg("slack: challenge reply dispatched")
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature validates the Slack request signature using the signing secret.
func (h *Handler) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("slack.Handler.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}
