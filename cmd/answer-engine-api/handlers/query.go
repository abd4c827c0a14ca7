package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
)

// QueryHandler handles question-answering requests.
type QueryHandler struct {
	logger *observability.Logger
	orc    *orchestrator.Orchestrator
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(logger *observability.Logger, orc *orchestrator.Orchestrator) *QueryHandler {
	return &QueryHandler{logger: logger, orc: orc}
}

// QueryRequestDTO represents the API request for a query.
type QueryRequestDTO struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Message  string `json:"message"`
}

// Query handles POST /api/v1/query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var reqDTO QueryRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid tenantId UUID")
		return
	}

	// userId is optional; the orchestrator synthesizes one when absent.
	var userID uuid.UUID
	if reqDTO.UserID != "" {
		userID, err = uuid.Parse(reqDTO.UserID)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid userId UUID")
			return
		}
	}

	channel := reqDTO.Channel
	if channel == "" {
		channel = "web"
	}

	resp, err := h.orc.Query(r.Context(), orchestrator.QueryRequest{
		TenantID: tenantID,
		UserID:   userID,
		Channel:  channel,
		Message:  reqDTO.Message,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", reqDTO.TenantID).Msg("Query failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
