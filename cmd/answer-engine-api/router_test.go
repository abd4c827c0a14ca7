package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/channel"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := observability.DefaultLogger()
	store, err := storage.NewStoreFromDB(db, "sqlite3", logger)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	embedder := embedding.NewFallback(8)
	index := retrieval.NewMemoryIndex(8)
	t.Cleanup(func() { _ = index.Close() })

	orc := orchestrator.New(logger, cfg, store, nil, embedder, index, nil)
	pipeline := ingest.NewPipeline(logger, ingest.PipelineConfig{
		MaxFileBytes: cfg.Ingestion.MaxFileBytes,
	}, store, embedder, index)

	srv := httptest.NewServer(NewRouter(logger, cfg, store, orc, pipeline))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestQueryRejectsBadTenant(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": "not-a-uuid",
		"message":  "hello",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Invalid tenantId UUID", body["detail"])
}

func TestQueryEmptyMessage(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": uuid.NewString(),
		"message":  "",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIngestThenQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	tenant := uuid.NewString()

	resp := postJSON(t, srv.URL+"/api/v1/ingest", map[string]string{
		"tenantId": tenant,
		"title":    "handbook",
		"content":  "Employees accrue 20 vacation days per year. Unused days roll over once.",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	ingestBody := decodeBody(t, resp)
	assert.NotEmpty(t, ingestBody["documentId"])
	assert.Greater(t, ingestBody["chunkCount"].(float64), 0.0)

	resp = postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": tenant,
		"message":  "how many vacation days do employees accrue?",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["response"], "vacation days")
	assert.NotEmpty(t, body["conversationId"])
}

func TestQueryEmptyCorpusAnswer(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": uuid.NewString(),
		"message":  "what is the leave policy?",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, orchestrator.NoTenantKnowledge, body["response"])
	assert.Equal(t, true, body["requiresHuman"])
}

func TestIngestFileMultipart(t *testing.T) {
	srv := newTestServer(t, nil)
	tenant := uuid.NewString()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("tenantId", tenant))
	part, err := mw.CreateFormFile("file", "employees.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Employee Name,Salary\n\"Akinkuolie, Sarah\",95000\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/ingest/file", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	qresp := postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": tenant,
		"message":  "What is the salary of Akinkuolie, Sarah?",
	})
	body := decodeBody(t, qresp)
	assert.Equal(t, "The salary of Akinkuolie, Sarah is $95,000.", body["response"])
}

func TestConversationMessages(t *testing.T) {
	srv := newTestServer(t, nil)
	tenant := uuid.NewString()

	postJSON(t, srv.URL+"/api/v1/ingest", map[string]string{
		"tenantId": tenant,
		"title":    "doc",
		"content":  "A short note about nothing in particular.",
	}).Body.Close()

	qresp := postJSON(t, srv.URL+"/api/v1/query", map[string]string{
		"tenantId": tenant,
		"message":  "what is this note about?",
	})
	qbody := decodeBody(t, qresp)
	convID := qbody["conversationId"].(string)

	resp, err := http.Get(srv.URL + "/api/v1/conversations/" + convID + "/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "USER", first["senderType"])
}

func TestConversationMessagesBadID(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/conversations/nope/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWebhookSignatureRequired(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks.TelegramSecret = "tg-secret"
	})

	body := []byte(fmt.Sprintf(
		`{"tenantId":%q,"message":{"from":{"id":42},"text":"hi"}}`, uuid.NewString()))

	// No signature.
	resp, err := http.Post(srv.URL+"/webhooks/telegram", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Valid signature.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/telegram", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", channel.Sign(body, "tg-secret"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	respBody := decodeBody(t, resp)
	assert.Equal(t, orchestrator.NoTenantKnowledge, respBody["response"])
}

func TestWebhookUnknownChannel(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/webhooks/smoke-signal", "application/json",
		bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestWhatsAppVerification(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhooks.VerifyToken = "verify-me"
	})

	resp, err := http.Get(srv.URL + "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "12345", buf.String())

	resp, err = http.Get(srv.URL + "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
