// Package retrieval provides hybrid retrieval combining lexical and vector search.
package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/storage"
)

// VectorIndex defines the interface for vector similarity search.
type VectorIndex interface {
	// EnsureCollection prepares the index for vectors of the given dimension.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert adds or replaces points in the index.
	Upsert(ctx context.Context, points []Point) error

	// Search finds the nearest tenant-scoped neighbors above the score threshold.
	Search(ctx context.Context, tenantID uuid.UUID, vector []float32, limit int, scoreThreshold float32) ([]Hit, error)

	// ScrollChapters walks the tenant's points and returns the distinct chapters.
	ScrollChapters(ctx context.Context, tenantID uuid.UUID) ([]storage.ChapterRef, error)

	// Close releases resources.
	Close() error
}

// Point is a vector plus its payload.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload PointPayload
}

// PointPayload carries the searchable fields stored alongside each vector.
type PointPayload struct {
	TenantID   string                `json:"tenant_id"`
	DocumentID string                `json:"document_id"`
	Content    string                `json:"content"`
	ChunkIndex int                   `json:"chunk_index"`
	Metadata   storage.ChunkMetadata `json:"metadata"`
}

// Hit is a search result.
type Hit struct {
	ID      uuid.UUID
	Score   float32
	Payload PointPayload
}

// ErrVectorDimensionMismatch indicates a dimension mismatch.
var ErrVectorDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryIndex is a pure-Go in-memory cosine index. It is the default when no
// external vector service is configured and the backing store for tests.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	points    map[uuid.UUID]indexedPoint
}

type indexedPoint struct {
	payload PointPayload
	vector  []float32
}

// NewMemoryIndex creates an in-memory vector index.
func NewMemoryIndex(dimension int) *MemoryIndex {
	if dimension <= 0 {
		dimension = 256
	}
	return &MemoryIndex{
		dimension: dimension,
		points:    make(map[uuid.UUID]indexedPoint),
	}
}

// EnsureCollection resets the expected dimension when the index is empty.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dimension > 0 && len(m.points) == 0 {
		m.dimension = dimension
	}
	return nil
}

// Upsert adds points, normalizing vectors for cosine search. The dimension
// adapts to the first inserted vector; later mismatches are rejected.
func (m *MemoryIndex) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		if len(p.Vector) == 0 {
			continue
		}
		if len(p.Vector) != m.dimension {
			if len(m.points) == 0 {
				m.dimension = len(p.Vector)
			} else {
				return ErrVectorDimensionMismatch
			}
		}
		m.points[p.ID] = indexedPoint{
			payload: p.Payload,
			vector:  normalizeVector(p.Vector),
		}
	}
	return nil
}

// Search returns tenant-scoped neighbors by cosine similarity. A query whose
// dimension does not match the stored vectors returns empty results so the
// caller can fall back to lexical retrieval.
func (m *MemoryIndex) Search(ctx context.Context, tenantID uuid.UUID, vector []float32, limit int, scoreThreshold float32) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(vector) != m.dimension && len(m.points) > 0 {
		return nil, nil
	}

	query := normalizeVector(vector)
	tenant := tenantID.String()

	var hits []Hit
	for id, p := range m.points {
		if p.payload.TenantID != tenant {
			continue
		}
		if len(p.vector) != len(query) {
			continue
		}
		score := 1 - cosineDistance(query, p.vector)
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Payload: p.payload})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ScrollChapters collects the distinct chapter pairs for a tenant.
func (m *MemoryIndex) ScrollChapters(ctx context.Context, tenantID uuid.UUID) ([]storage.ChapterRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant := tenantID.String()
	seen := make(map[int]string)
	for _, p := range m.points {
		if p.payload.TenantID != tenant {
			continue
		}
		meta := p.payload.Metadata
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

	chapters := make([]storage.ChapterRef, 0, len(seen))
	for num, title := range seen {
		chapters = append(chapters, storage.ChapterRef{Num: num, Title: title})
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Num < chapters[j].Num })
	return chapters, nil
}

// Close releases resources.
func (m *MemoryIndex) Close() error {
	return nil
}

// cosineDistance computes cosine distance between two normalized vectors:
// distance = 1 - dot(a, b).
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 1.0
	}

	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}

	// Clamp against floating point drift.
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}

	return 1 - dot
}

// normalizeVector returns a unit vector.
func normalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}

	return normalized
}

var _ VectorIndex = (*MemoryIndex)(nil)
