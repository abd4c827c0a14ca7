package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
)

// IngestHandler handles document ingestion requests.
type IngestHandler struct {
	logger   *observability.Logger
	pipeline *ingest.Pipeline
	maxBytes int64
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(logger *observability.Logger, pipeline *ingest.Pipeline, maxBytes int64) *IngestHandler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &IngestHandler{logger: logger, pipeline: pipeline, maxBytes: maxBytes}
}

// IngestRequestDTO represents the JSON ingestion request.
type IngestRequestDTO struct {
	TenantID        string         `json:"tenantId"`
	KnowledgeBaseID string         `json:"knowledgeBaseId,omitempty"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Ingest handles POST /api/v1/ingest with a raw text body.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var reqDTO IngestRequestDTO
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxBytes)).Decode(&reqDTO); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid tenantId UUID")
		return
	}
	if strings.TrimSpace(reqDTO.Content) == "" {
		writeDetail(w, http.StatusBadRequest, "content is required")
		return
	}

	kbID, ok := parseOptionalUUID(reqDTO.KnowledgeBaseID)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid knowledgeBaseId UUID")
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), ingest.IngestRequest{
		TenantID:        tenantID,
		KnowledgeBaseID: kbID,
		Title:           reqDTO.Title,
		Content:         reqDTO.Content,
		Metadata:        reqDTO.Metadata,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", reqDTO.TenantID).Msg("Ingestion failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// IngestFile handles POST /api/v1/ingest/file with a multipart upload. The
// filename extension selects the extractor.
func (h *IngestHandler) IngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	tenantID, err := uuid.Parse(r.FormValue("tenantId"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid tenantId UUID")
		return
	}

	kbID, ok := parseOptionalUUID(r.FormValue("knowledgeBaseId"))
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid knowledgeBaseId UUID")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	result, err := h.pipeline.Ingest(r.Context(), ingest.IngestRequest{
		TenantID:        tenantID,
		KnowledgeBaseID: kbID,
		Title:           title,
		Filename:        header.Filename,
		Data:            data,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("File ingestion failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func parseOptionalUUID(raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}
