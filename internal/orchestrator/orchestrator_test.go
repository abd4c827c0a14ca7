package orchestrator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/answer"
	"github.com/answerline/answer-engine/internal/cache"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/domain"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

type testEnv struct {
	orc    *Orchestrator
	store  *storage.Store
	index  *retrieval.MemoryIndex
	tenant uuid.UUID
}

func newTestEnv(t *testing.T, cacheCli cache.Client) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := observability.DefaultLogger()
	store, err := storage.NewStoreFromDB(db, "sqlite3", logger)
	require.NoError(t, err)

	index := retrieval.NewMemoryIndex(8)
	cfg := config.DefaultConfig()

	return &testEnv{
		orc:    New(logger, cfg, store, cacheCli, embedding.NewFallback(8), index, nil),
		store:  store,
		index:  index,
		tenant: uuid.New(),
	}
}

func (e *testEnv) ingestText(t *testing.T, title, content string) {
	t.Helper()
	p := ingest.NewPipeline(
		observability.DefaultLogger(),
		ingest.PipelineConfig{MaxFileBytes: 1 << 20},
		e.store,
		embedding.NewFallback(8),
		e.index,
	)
	_, err := p.Ingest(context.Background(), ingest.IngestRequest{
		TenantID: e.tenant,
		Title:    title,
		Content:  content,
	})
	require.NoError(t, err)
}

func (e *testEnv) ingestCSV(t *testing.T, title, csv string) {
	t.Helper()
	p := ingest.NewPipeline(
		observability.DefaultLogger(),
		ingest.PipelineConfig{MaxFileBytes: 1 << 20},
		e.store,
		embedding.NewFallback(8),
		e.index,
	)
	_, err := p.Ingest(context.Background(), ingest.IngestRequest{
		TenantID: e.tenant,
		Title:    title,
		Filename: title + ".csv",
		Data:     []byte(csv),
	})
	require.NoError(t, err)
}

func (e *testEnv) query(t *testing.T, userID uuid.UUID, message string) *QueryResponse {
	t.Helper()
	resp, err := e.orc.Query(context.Background(), QueryRequest{
		TenantID: e.tenant,
		UserID:   userID,
		Channel:  "web",
		Message:  message,
	})
	require.NoError(t, err)
	return resp
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.orc.Query(context.Background(), QueryRequest{Channel: "web", Message: "hi"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = env.orc.Query(context.Background(), QueryRequest{TenantID: env.tenant, Channel: "web"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = env.orc.Query(context.Background(), QueryRequest{TenantID: env.tenant, Message: "hi"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestQueryEmptyCorpus(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.query(t, uuid.New(), "what is the leave policy?")

	assert.Equal(t, NoTenantKnowledge, resp.Response)
	assert.True(t, resp.RequiresHuman)
	assert.Zero(t, resp.Confidence)

	msgs, err := env.orc.Conversations().Messages(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, storage.SenderTypeUser, msgs[0].SenderType)
	assert.Equal(t, storage.SenderTypeSystem, msgs[1].SenderType)
}

func TestQuerySensitiveRefusal(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.query(t, uuid.New(), "What is the ethnicity of Akinkuolie, Sarah?")

	assert.Equal(t, answer.RefusalText, resp.Response)
	assert.True(t, resp.RequiresHuman)

	// Only the user message is recorded for a refused turn.
	msgs, err := env.orc.Conversations().Messages(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, storage.SenderTypeUser, msgs[0].SenderType)
}

func TestQuerySalaryAndPronounFollowup(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestCSV(t, "employees",
		"Employee Name,Department,Salary\n"+
			"\"Akinkuolie, Sarah\",Engineering,95000\n"+
			"Brown James,Sales,64000\n")

	user := uuid.New()
	resp := env.query(t, user, "What is the salary of Akinkuolie, Sarah?")
	assert.Equal(t, "The salary of Akinkuolie, Sarah is $95,000.", resp.Response)
	assert.GreaterOrEqual(t, resp.Confidence, 0.9)
	require.NotEmpty(t, resp.Citations)
	assert.Contains(t, resp.Citations[0].Snippet, "Akinkuolie, Sarah")

	followup := env.query(t, user, "What is her department?")
	assert.Equal(t, "Akinkuolie, Sarah works in the Engineering department.", followup.Response)
	assert.Equal(t, resp.ConversationID, followup.ConversationID)
}

func TestQueryUnknownPerson(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestCSV(t, "employees",
		"Employee Name,Salary\n\"Akinkuolie, Sarah\",95000\n")

	resp := env.query(t, uuid.New(), "What is the salary of Jones, Pat?")
	assert.Contains(t, resp.Response, "Jones, Pat")
	assert.True(t, resp.RequiresHuman)
	assert.Zero(t, resp.Confidence)
}

func TestQueryChapterNavigation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestText(t, "manual",
		"Chapter 1: Intro\nThis manual explains the product.\n"+
			"Chapter 2: Setup\nInstall the package first.\n"+
			"Chapter 3: Usage\nRun the binary with a config file.")

	resp := env.query(t, uuid.New(), "What is the next chapter after Chapter 2?")
	assert.Equal(t, "The next chapter is Chapter 3: Usage.", resp.Response)
	assert.GreaterOrEqual(t, resp.Confidence, 0.9)
}

func TestQueryListContinuation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestText(t, "processes",
		"The processes of project management are:\n"+
			"- Initiating\n- Planning\n- Executing\n- Monitoring\n- Closing")

	user := uuid.New()
	first := env.query(t, user, "List the first 3 processes of project management")
	assert.Equal(t, "1. Initiating\n2. Planning\n3. Executing", first.Response)

	second := env.query(t, user, "next 2")
	assert.Equal(t, "4. Monitoring\n5. Closing", second.Response)

	third := env.query(t, user, "next 1")
	assert.Equal(t, answer.NoFurtherItems, third.Response)
}

func TestQueryCacheWriteThrough(t *testing.T) {
	env := newTestEnv(t, cache.NewMemoryClient(100))
	env.ingestText(t, "handbook",
		"Onboarding involves a laptop, a mentor, and a first-week plan. "+
			"New hires meet their team in the first week.")

	first := env.query(t, uuid.New(), "what does onboarding involve?")
	assert.False(t, first.Cached)

	second := env.query(t, uuid.New(), "what does onboarding involve?")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestQueryContinuationBypassesCache(t *testing.T) {
	env := newTestEnv(t, cache.NewMemoryClient(100))
	env.ingestText(t, "processes",
		"The processes of project management are:\n"+
			"- Initiating\n- Planning\n- Executing\n- Monitoring\n- Closing")

	userA := uuid.New()
	env.query(t, userA, "List the first 3 processes of project management")
	respA := env.query(t, userA, "next 2")
	assert.Equal(t, "4. Monitoring\n5. Closing", respA.Response)
	assert.False(t, respA.Cached)

	// A different conversation issuing "next 2" must not see user A's slice.
	userB := uuid.New()
	env.query(t, userB, "List the first 3 processes of project management")
	respB := env.query(t, userB, "next 2")
	assert.Equal(t, "4. Monitoring\n5. Closing", respB.Response)
	assert.False(t, respB.Cached)
}

func TestQuerySynthesizesUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.ingestText(t, "doc", "Short note. Nothing else here.")

	resp, err := env.orc.Query(context.Background(), QueryRequest{
		TenantID: env.tenant,
		Channel:  "web",
		Message:  "anything at all?",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.ConversationID)
}
