package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/conversation"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/storage"
)

// ConversationsHandler exposes conversation history.
type ConversationsHandler struct {
	logger *observability.Logger
	convs  *conversation.Store
}

// NewConversationsHandler creates a new conversations handler.
func NewConversationsHandler(logger *observability.Logger, convs *conversation.Store) *ConversationsHandler {
	return &ConversationsHandler{logger: logger, convs: convs}
}

// MessageDTO represents one conversation message.
type MessageDTO struct {
	ID         string `json:"id"`
	SenderType string `json:"senderType"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// Messages handles GET /api/v1/conversations/{conversationId}/messages.
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid conversationId UUID")
		return
	}

	msgs, err := h.convs.Messages(r.Context(), conversationID)
	if err != nil {
		h.logger.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("Failed to list messages")
		writeError(w, err)
		return
	}

	dto := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto = append(dto, toMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": dto})
}

func toMessageDTO(m *storage.Message) MessageDTO {
	return MessageDTO{
		ID:         m.ID.String(),
		SenderType: string(m.SenderType),
		Content:    m.Content,
		Timestamp:  m.Timestamp.Format(time.RFC3339),
	}
}
