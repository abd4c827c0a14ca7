package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/domain"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/extract"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

// Pipeline runs document ingestion: extract, chunk, embed, store, index.
type Pipeline struct {
	logger   *observability.Logger
	store    *storage.Store
	chunker  *Chunker
	embedder embedding.Embedder
	index    retrieval.VectorIndex
	config   PipelineConfig
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	StoragePath      string
	MaxFileBytes     int64
	ChunkTargetChars int
	OverlapSentences int
}

// IngestRequest describes one document to ingest. Either Content (raw text)
// or Filename+Data (an uploaded file) must be set.
type IngestRequest struct {
	TenantID        uuid.UUID
	KnowledgeBaseID *uuid.UUID
	Title           string
	Filename        string
	Data            []byte
	Content         string
	Metadata        map[string]interface{}
}

// IngestResult reports what an ingestion produced.
type IngestResult struct {
	DocumentID uuid.UUID              `json:"documentId"`
	ChunkCount int                    `json:"chunkCount"`
	Status     storage.DocumentStatus `json:"status"`
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	logger *observability.Logger,
	cfg PipelineConfig,
	store *storage.Store,
	embedder embedding.Embedder,
	index retrieval.VectorIndex,
) *Pipeline {
	return &Pipeline{
		logger: logger,
		store:  store,
		chunker: NewChunker(ChunkerConfig{
			TargetChars:      cfg.ChunkTargetChars,
			OverlapSentences: cfg.OverlapSentences,
		}),
		embedder: embedder,
		index:    index,
		config:   cfg,
	}
}

// Ingest processes one document end to end. The chunk insert and document
// finalization share a transaction, so a failed ingest leaves the document
// FAILED with zero chunks rather than partially indexed.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	repos := p.store.Repos()

	if err := repos.Tenants.Ensure(ctx, req.TenantID); err != nil {
		return nil, domain.Storage("ensure tenant", err)
	}

	kb, err := p.resolveKnowledgeBase(ctx, repos, req)
	if err != nil {
		return nil, err
	}

	chunks, columns, preview, err := p.chunk(req)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.Validation("document produced no indexable content")
	}

	doc, err := p.createDocument(ctx, repos, req, kb, columns, preview)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("document_id", doc.ID.String()).
		Int("chunk_count", len(chunks)).
		Bool("tabular", len(columns) > 0).
		Msg("Ingesting document")

	embeddings, err := p.embed(ctx, chunks)
	if err != nil {
		_ = repos.Documents.Finalize(ctx, doc.ID, storage.DocumentStatusFailed, 0)
		return nil, err
	}

	records := make([]*storage.KnowledgeChunk, len(chunks))
	for i, chunk := range chunks {
		meta, _ := json.Marshal(chunk.Metadata)
		records[i] = &storage.KnowledgeChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Content:    chunk.Content,
			ChunkIndex: chunk.Index,
			Embedding:  embeddings[i],
			Metadata:   meta,
		}
	}

	err = p.store.WithTx(ctx, func(txRepos *storage.Repositories) error {
		if err := txRepos.Chunks.InsertBatch(ctx, records); err != nil {
			return err
		}
		return txRepos.Documents.Finalize(ctx, doc.ID, storage.DocumentStatusIndexed, len(records))
	})
	if err != nil {
		_ = repos.Documents.Finalize(ctx, doc.ID, storage.DocumentStatusFailed, 0)
		return nil, domain.Storage("store chunks", err)
	}

	if err := repos.KnowledgeBases.IncrementDocumentCount(ctx, kb.ID); err != nil {
		p.logger.Warn().Err(err).Str("kb_id", kb.ID.String()).Msg("Failed to bump document count")
	}

	p.indexVectors(ctx, req.TenantID, doc.ID, records)
	p.writeSidecar(req, doc, kb, len(records), columns)

	p.logger.Info().
		Str("document_id", doc.ID.String()).
		Int("chunk_count", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Document indexed")

	return &IngestResult{
		DocumentID: doc.ID,
		ChunkCount: len(records),
		Status:     storage.DocumentStatusIndexed,
	}, nil
}

func (p *Pipeline) validate(req IngestRequest) error {
	if req.TenantID == uuid.Nil {
		return domain.Validation("tenantId is required")
	}
	if req.Content == "" && len(req.Data) == 0 {
		return domain.Validation("document content is empty")
	}
	if p.config.MaxFileBytes > 0 && int64(len(req.Data)) > p.config.MaxFileBytes {
		return domain.Validation("file exceeds the maximum upload size")
	}
	return nil
}

func (p *Pipeline) resolveKnowledgeBase(ctx context.Context, repos *storage.Repositories, req IngestRequest) (*storage.KnowledgeBase, error) {
	if req.KnowledgeBaseID != nil {
		kb, err := repos.KnowledgeBases.GetByID(ctx, req.TenantID, *req.KnowledgeBaseID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("knowledge base not found")
		}
		if err != nil {
			return nil, domain.Storage("load knowledge base", err)
		}
		return kb, nil
	}

	kb, err := repos.KnowledgeBases.EnsureDefault(ctx, req.TenantID)
	if err != nil {
		return nil, domain.Storage("ensure knowledge base", err)
	}
	return kb, nil
}

// chunk routes to the tabular or prose chunker and returns the chunks plus
// tabular columns and a short row preview when applicable.
func (p *Pipeline) chunk(req IngestRequest) ([]Chunk, []string, []string, error) {
	if req.Filename != "" && extract.IsTabular(req.Filename) && len(req.Data) > 0 {
		rows, err := extract.Rows(req.Filename, req.Data)
		if err != nil {
			return nil, nil, nil, domain.Validation("could not parse tabular file: " + err.Error())
		}
		columns, chunks, err := p.chunker.ChunkRows(rows)
		if err != nil {
			return nil, nil, nil, domain.Validation(err.Error())
		}
		preview := rows
		if len(preview) > 5 {
			preview = preview[:5]
		}
		return chunks, columns, preview, nil
	}

	text := req.Content
	if text == "" {
		extracted, err := extract.Text(req.Filename, req.Data)
		if err != nil {
			return nil, nil, nil, domain.Validation("could not extract document text: " + err.Error())
		}
		text = extracted
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil, domain.Validation("document content is empty")
	}

	return p.chunker.ChunkText(text), nil, nil, nil
}

func (p *Pipeline) createDocument(
	ctx context.Context,
	repos *storage.Repositories,
	req IngestRequest,
	kb *storage.KnowledgeBase,
	columns []string,
	preview []string,
) (*storage.Document, error) {
	title := req.Title
	if title == "" {
		title = req.Filename
	}
	if title == "" {
		title = "Untitled document"
	}

	metadata := map[string]interface{}{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.Filename != "" {
		metadata["filename"] = req.Filename
	}
	if len(columns) > 0 {
		metadata["columns"] = columns
		metadata["preview"] = preview
	}
	metaJSON, _ := json.Marshal(metadata)

	doc := &storage.Document{
		ID:              uuid.New(),
		KnowledgeBaseID: kb.ID,
		Title:           title,
		ContentPreview:  previewText(req, preview),
		Status:          storage.DocumentStatusProcessing,
		Metadata:        metaJSON,
	}
	if err := repos.Documents.Create(ctx, doc); err != nil {
		return nil, domain.Storage("create document", err)
	}
	return doc, nil
}

func previewText(req IngestRequest, rows []string) string {
	text := req.Content
	if len(rows) > 0 {
		text = strings.Join(rows, "\n")
	}
	if text == "" {
		text = req.Filename
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func (p *Pipeline) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.External("generate embeddings", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, domain.External("generate embeddings", nil)
	}
	return embeddings, nil
}

// indexVectors pushes chunk vectors to the vector index. Index failure
// degrades to lexical-only retrieval and never fails the ingest.
func (p *Pipeline) indexVectors(ctx context.Context, tenantID, documentID uuid.UUID, records []*storage.KnowledgeChunk) {
	if p.index == nil {
		return
	}

	points := make([]retrieval.Point, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		points = append(points, retrieval.Point{
			ID:     rec.ID,
			Vector: rec.Embedding,
			Payload: retrieval.PointPayload{
				TenantID:   tenantID.String(),
				DocumentID: documentID.String(),
				Content:    rec.Content,
				ChunkIndex: rec.ChunkIndex,
				Metadata:   rec.Meta(),
			},
		})
	}
	if len(points) == 0 {
		return
	}

	if err := p.index.EnsureCollection(ctx, len(points[0].Vector)); err != nil {
		p.logger.Warn().Err(err).Msg("Vector collection unavailable, skipping indexing")
		return
	}
	if err := p.index.Upsert(ctx, points); err != nil {
		p.logger.Warn().
			Err(err).
			Int("point_count", len(points)).
			Msg("Vector upsert failed, continuing without dense index")
	}
}

// writeSidecar mirrors the document metadata to disk. Best effort.
func (p *Pipeline) writeSidecar(req IngestRequest, doc *storage.Document, kb *storage.KnowledgeBase, chunkCount int, columns []string) {
	if p.config.StoragePath == "" {
		return
	}

	metadata := map[string]interface{}{
		"document_id":       doc.ID.String(),
		"knowledge_base_id": kb.ID.String(),
		"title":             doc.Title,
		"filename":          req.Filename,
		"chunk_count":       chunkCount,
		"ingested_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if len(columns) > 0 {
		metadata["columns"] = columns
	}

	if _, err := storage.WriteSidecar(p.config.StoragePath, req.TenantID, doc.ID, metadata); err != nil {
		p.logger.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Failed to write metadata sidecar")
	}
}
