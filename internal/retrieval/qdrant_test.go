package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPIndexSearch(t *testing.T) {
	tenant := uuid.New()
	hitID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/knowledge_chunks/points/search", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]interface{})
		must := filter["must"].([]interface{})
		require.Len(t, must, 1)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{
					"id":    hitID.String(),
					"score": 0.91,
					"payload": map[string]interface{}{
						"tenant_id": tenant.String(),
						"content":   "matched chunk",
					},
				},
			},
		})
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(HTTPIndexConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), tenant, []float32{1, 0}, 5, 0.3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, hitID, hits[0].ID)
	assert.Equal(t, "matched chunk", hits[0].Payload.Content)
	assert.InDelta(t, 0.91, float64(hits[0].Score), 1e-6)
}

func TestHTTPIndexEnsureCollectionToleratesConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(HTTPIndexConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	assert.NoError(t, idx.EnsureCollection(context.Background(), 256))
}

func TestHTTPIndexRetriesThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(HTTPIndexConfig{
		BaseURL:    srv.URL,
		Retries:    3,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	err = idx.Upsert(context.Background(), []Point{{ID: uuid.New(), Vector: []float32{1}}})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestHTTPIndexScrollChapters(t *testing.T) {
	tenant := uuid.New()
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/knowledge_chunks/points/scroll", r.URL.Path)
		calls++

		if calls == 1 {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"result": map[string]interface{}{
					"points": []map[string]interface{}{
						{"id": uuid.NewString(), "payload": map[string]interface{}{
							"tenant_id": tenant.String(),
							"metadata":  map[string]interface{}{"chapter_num": 2, "chapter_title": "Usage"},
						}},
					},
					"next_page_offset": "cursor-1",
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"points": []map[string]interface{}{
					{"id": uuid.NewString(), "payload": map[string]interface{}{
						"tenant_id": tenant.String(),
						"metadata":  map[string]interface{}{"chapter_num": 1, "chapter_title": "Intro"},
					}},
				},
				"next_page_offset": nil,
			},
		})
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(HTTPIndexConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	chapters, err := idx.ScrollChapters(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, 1, chapters[0].Num)
	assert.Equal(t, "Intro", chapters[0].Title)
	assert.Equal(t, 2, chapters[1].Num)
	assert.Equal(t, "Usage", chapters[1].Title)
	assert.Equal(t, 2, calls)
}
