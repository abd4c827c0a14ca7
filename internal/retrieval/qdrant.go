package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/storage"
)

// HTTPIndex speaks the qdrant REST dialect. Requests retry with doubling
// backoff; callers treat a persistent error as degradation, not a hard
// failure.
type HTTPIndex struct {
	httpClient *http.Client
	logger     *observability.Logger
	baseURL    string
	apiKey     string
	collection string
	retries    int
	retryDelay time.Duration
}

// HTTPIndexConfig holds the remote index configuration.
type HTTPIndexConfig struct {
	BaseURL    string
	APIKey     string
	Collection string // Default: "knowledge_chunks"
	Timeout    time.Duration
	Retries    int           // Default: 3
	RetryDelay time.Duration // Default: 200ms
}

// NewHTTPIndex creates a client for a remote vector service.
func NewHTTPIndex(cfg HTTPIndexConfig, logger *observability.Logger) (*HTTPIndex, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vector index URL is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge_chunks"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}

	return &HTTPIndex{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// EnsureCollection creates the collection and the tenant payload index.
// An already-existing collection is not an error.
func (q *HTTPIndex) EnsureCollection(ctx context.Context, dimension int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection, body, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	indexBody := map[string]interface{}{
		"field_name":   "tenant_id",
		"field_schema": "keyword",
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/index", indexBody, nil, http.StatusConflict); err != nil {
		return fmt.Errorf("create payload index: %w", err)
	}
	return nil
}

// Upsert writes points to the collection.
func (q *HTTPIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	payload := make([]map[string]interface{}, len(points))
	for i, p := range points {
		payload[i] = map[string]interface{}{
			"id":      p.ID.String(),
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}

	body := map[string]interface{}{"points": payload}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      string       `json:"id"`
		Score   float32      `json:"score"`
		Payload PointPayload `json:"payload"`
	} `json:"result"`
}

// Search runs a tenant-filtered nearest-neighbor query.
func (q *HTTPIndex) Search(ctx context.Context, tenantID uuid.UUID, vector []float32, limit int, scoreThreshold float32) ([]Hit, error) {
	body := map[string]interface{}{
		"vector":          vector,
		"limit":           limit,
		"score_threshold": scoreThreshold,
		"with_payload":    true,
		"filter":          tenantFilter(tenantID),
	}

	var resp searchResponse
	if err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", body, &resp); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			ID      string       `json:"id"`
			Payload PointPayload `json:"payload"`
		} `json:"points"`
		NextPageOffset interface{} `json:"next_page_offset"`
	} `json:"result"`
}

// ScrollChapters pages through the tenant's points and collects the distinct
// chapter pairs found in payload metadata.
func (q *HTTPIndex) ScrollChapters(ctx context.Context, tenantID uuid.UUID) ([]storage.ChapterRef, error) {
	seen := make(map[int]string)
	var offset interface{}

	for {
		body := map[string]interface{}{
			"filter":       tenantFilter(tenantID),
			"limit":        256,
			"with_payload": true,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp scrollResponse
		if err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/scroll", body, &resp); err != nil {
			return nil, fmt.Errorf("scroll points: %w", err)
		}

		for _, p := range resp.Result.Points {
			meta := p.Payload.Metadata
			if meta.ChapterNum == nil {
				continue
			}
			title := ""
			if meta.ChapterTitle != nil {
				title = *meta.ChapterTitle
			}
			if _, ok := seen[*meta.ChapterNum]; !ok || title != "" {
				seen[*meta.ChapterNum] = title
			}
		}

		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	chapters := make([]storage.ChapterRef, 0, len(seen))
	for num, title := range seen {
		chapters = append(chapters, storage.ChapterRef{Num: num, Title: title})
	}
	sortChapters(chapters)
	return chapters, nil
}

// Close releases resources.
func (q *HTTPIndex) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}

func tenantFilter(tenantID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{
				"key":   "tenant_id",
				"match": map[string]interface{}{"value": tenantID.String()},
			},
		},
	}
}

// do sends one request with bounded retry. Statuses listed in okStatuses are
// accepted alongside 2xx.
func (q *HTTPIndex) do(ctx context.Context, method, path string, body interface{}, out interface{}, okStatuses ...int) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	delay := q.retryDelay

	for attempt := 0; attempt < q.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = q.once(ctx, method, path, jsonBody, out, okStatuses)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if q.logger != nil {
			q.logger.Debug().
				Err(lastErr).
				Str("path", path).
				Int("attempt", attempt+1).
				Msg("Vector index request failed")
		}
	}
	return lastErr
}

func (q *HTTPIndex) once(ctx context.Context, method, path string, jsonBody []byte, out interface{}, okStatuses []int) error {
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		accepted := false
		for _, s := range okStatuses {
			if resp.StatusCode == s {
				accepted = true
				break
			}
		}
		if !accepted {
			return fmt.Errorf("vector service: status %d, body: %s", resp.StatusCode, string(respBody))
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func sortChapters(chapters []storage.ChapterRef) {
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Num < chapters[j].Num })
}

var _ VectorIndex = (*HTTPIndex)(nil)
