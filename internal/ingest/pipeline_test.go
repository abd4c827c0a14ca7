package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/domain"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.NewStoreFromDB(db, "sqlite3", observability.DefaultLogger())
	require.NoError(t, err)
	return store
}

func testPipeline(t *testing.T, store *storage.Store, index retrieval.VectorIndex) *Pipeline {
	t.Helper()
	return NewPipeline(
		observability.DefaultLogger(),
		PipelineConfig{MaxFileBytes: 1 << 20},
		store,
		embedding.NewFallback(8),
		index,
	)
}

func TestIngestText(t *testing.T) {
	store := testStore(t)
	index := retrieval.NewMemoryIndex(8)
	p := testPipeline(t, store, index)

	tenant := uuid.New()
	result, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: tenant,
		Title:    "Handbook",
		Content:  "Chapter 1: Introduction\nWelcome to the handbook. It explains the basics. Read it carefully before starting.",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.DocumentStatusIndexed, result.Status)
	assert.Greater(t, result.ChunkCount, 0)

	repos := store.Repos()
	doc, err := repos.Documents.GetByID(context.Background(), result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, storage.DocumentStatusIndexed, doc.Status)
	assert.Equal(t, result.ChunkCount, doc.ChunkCount)
	assert.NotNil(t, doc.IndexedAt)

	chunks, err := repos.Chunks.ListByDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, result.ChunkCount)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Len(t, chunk.Embedding, 8)
	}

	// Vectors reached the index under the right tenant.
	hits, err := index.Search(context.Background(), tenant, chunks[0].Embedding, 5, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestIngestTabularCSV(t *testing.T) {
	store := testStore(t)
	p := testPipeline(t, store, nil)

	data := []byte("Employee Name,Salary,Department\n\"Akinkuolie, Sarah\",95000,Finance\nSmith John,64000,IT\n")
	result, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: uuid.New(),
		Filename: "employees.csv",
		Data:     data,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunkCount)

	doc, err := store.Repos().Documents.GetByID(context.Background(), result.DocumentID)
	require.NoError(t, err)

	var meta struct {
		Columns []string `json:"columns"`
		Preview []string `json:"preview"`
	}
	require.NoError(t, json.Unmarshal(doc.Metadata, &meta))
	assert.Equal(t, []string{"employee_name", "salary", "department"}, meta.Columns)
	require.NotEmpty(t, meta.Preview)
	assert.Equal(t, "Employee Name,Salary,Department", meta.Preview[0])
}

func TestIngestEmptyContent(t *testing.T) {
	p := testPipeline(t, testStore(t), nil)

	_, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: uuid.New(),
		Content:  "   \n  ",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestIngestMissingTenant(t *testing.T) {
	p := testPipeline(t, testStore(t), nil)

	_, err := p.Ingest(context.Background(), IngestRequest{Content: "some text"})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestIngestOversizeFile(t *testing.T) {
	store := testStore(t)
	p := NewPipeline(observability.DefaultLogger(), PipelineConfig{MaxFileBytes: 10}, store, embedding.NewFallback(8), nil)

	_, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: uuid.New(),
		Filename: "big.txt",
		Data:     []byte("this payload is larger than ten bytes"),
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestIngestUnknownKnowledgeBase(t *testing.T) {
	p := testPipeline(t, testStore(t), nil)

	missing := uuid.New()
	_, err := p.Ingest(context.Background(), IngestRequest{
		TenantID:        uuid.New(),
		KnowledgeBaseID: &missing,
		Content:         "some text worth chunking here",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestIngestWritesSidecar(t *testing.T) {
	store := testStore(t)
	dir := t.TempDir()
	p := NewPipeline(observability.DefaultLogger(), PipelineConfig{StoragePath: dir}, store, embedding.NewFallback(8), nil)

	tenant := uuid.New()
	result, err := p.Ingest(context.Background(), IngestRequest{
		TenantID: tenant,
		Content:  "A document with enough text to produce at least one chunk.",
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "tenant_"+tenant.String(), "documents", result.DocumentID.String(), "metadata.json")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestIngestDefaultKnowledgeBaseReused(t *testing.T) {
	store := testStore(t)
	p := testPipeline(t, store, nil)
	tenant := uuid.New()

	_, err := p.Ingest(context.Background(), IngestRequest{TenantID: tenant, Content: "First document body text."})
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), IngestRequest{TenantID: tenant, Content: "Second document body text."})
	require.NoError(t, err)

	docs, err := store.Repos().Documents.ListByTenant(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, docs[0].KnowledgeBaseID, docs[1].KnowledgeBaseID)
}
