package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/answerline/answer-engine/internal/channel"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
)

// WebhookHandler receives messaging-platform callbacks, verifies their
// signatures, and routes the normalized message through the query pipeline.
type WebhookHandler struct {
	logger *observability.Logger
	cfg    *config.Config
	orc    *orchestrator.Orchestrator
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *observability.Logger, cfg *config.Config, orc *orchestrator.Orchestrator) *WebhookHandler {
	return &WebhookHandler{logger: logger, cfg: cfg, orc: orc}
}

// Receive handles POST /webhooks/{channel}.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channelName := chi.URLParam(r, "channel")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	secret := h.cfg.WebhookSecret(channelName)
	if !channel.VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), secret) {
		h.logger.Warn().Str("channel", channelName).Msg("Webhook signature verification failed")
		writeDetail(w, http.StatusForbidden, "invalid signature")
		return
	}

	in, err := channel.Normalize(channelName, body)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.orc.Query(r.Context(), orchestrator.QueryRequest{
		TenantID: in.TenantID,
		UserID:   in.UserID,
		Channel:  in.Channel,
		Message:  in.Message,
	})
	if err != nil {
		h.logger.Error().Err(err).
			Str("channel", in.Channel).
			Str("platform_user", in.PlatformUserID).
			Msg("Webhook query failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// VerifyWhatsApp handles GET /webhooks/whatsapp, the hub-challenge handshake
// WhatsApp performs when the webhook URL is registered.
func (h *WebhookHandler) VerifyWhatsApp(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.cfg.Webhooks.VerifyToken {
		writeDetail(w, http.StatusForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(challenge))
}
