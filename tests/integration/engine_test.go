package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/answer"
	"github.com/answerline/answer-engine/internal/cache"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/ingest"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/orchestrator"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

type stack struct {
	store    *storage.Store
	cache    cache.Client
	orc      *orchestrator.Orchestrator
	pipeline *ingest.Pipeline
	tenant   uuid.UUID
}

func newStack(t *testing.T, setup *TestContainerSetup) *stack {
	t.Helper()

	db, err := sql.Open("postgres", setup.PostgresConnStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.Eventually(t, func() bool { return db.PingContext(ctx) == nil },
		30*time.Second, 100*time.Millisecond)

	logger := observability.DefaultLogger()
	store, err := storage.NewStoreFromDB(db, "postgres", logger)
	require.NoError(t, err)

	redisCli, err := cache.NewRedisClient(cache.RedisConfig{Addr: setup.RedisAddr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCli.Close() })

	cfg := config.DefaultConfig()
	embedder := embedding.NewFallback(8)
	index := retrieval.NewMemoryIndex(8)
	t.Cleanup(func() { _ = index.Close() })

	return &stack{
		store: store,
		cache: redisCli,
		orc:   orchestrator.New(logger, cfg, store, redisCli, embedder, index, nil),
		pipeline: ingest.NewPipeline(logger, ingest.PipelineConfig{
			MaxFileBytes: 1 << 20,
		}, store, embedder, index),
		tenant: uuid.New(),
	}
}

func (s *stack) ingest(t *testing.T, req ingest.IngestRequest) {
	t.Helper()
	req.TenantID = s.tenant
	_, err := s.pipeline.Ingest(context.Background(), req)
	require.NoError(t, err)
}

func (s *stack) query(t *testing.T, userID uuid.UUID, msg string) *orchestrator.QueryResponse {
	t.Helper()
	resp, err := s.orc.Query(context.Background(), orchestrator.QueryRequest{
		TenantID: s.tenant,
		UserID:   userID,
		Channel:  "web",
		Message:  msg,
	})
	require.NoError(t, err)
	return resp
}

func TestEngineOnPostgres(t *testing.T) {
	skipWithoutDocker(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	s := newStack(t, setup)
	s.ingest(t, ingest.IngestRequest{
		Title:    "employees",
		Filename: "employees.csv",
		Data: []byte("Employee Name,Department,Salary\n" +
			"\"Akinkuolie, Sarah\",Engineering,95000\n" +
			"Brown James,Sales,64000\n"),
	})
	s.ingest(t, ingest.IngestRequest{
		Title: "processes",
		Content: "The processes of project management are:\n" +
			"- Initiating\n- Planning\n- Executing\n- Monitoring\n- Closing",
	})

	t.Run("tabular lookup with pronoun followup", func(t *testing.T) {
		user := uuid.New()
		resp := s.query(t, user, "What is the salary of Akinkuolie, Sarah?")
		assert.Equal(t, "The salary of Akinkuolie, Sarah is $95,000.", resp.Response)

		followup := s.query(t, user, "What is her department?")
		assert.Equal(t, "Akinkuolie, Sarah works in the Engineering department.", followup.Response)
		assert.Equal(t, resp.ConversationID, followup.ConversationID)
	})

	t.Run("list continuation survives round trips", func(t *testing.T) {
		user := uuid.New()
		first := s.query(t, user, "List the first 3 processes of project management")
		assert.Equal(t, "1. Initiating\n2. Planning\n3. Executing", first.Response)

		second := s.query(t, user, "next 2")
		assert.Equal(t, "4. Monitoring\n5. Closing", second.Response)

		third := s.query(t, user, "next 1")
		assert.Equal(t, answer.NoFurtherItems, third.Response)
	})

	t.Run("conversation history persisted", func(t *testing.T) {
		user := uuid.New()
		resp := s.query(t, user, "What is the salary of Brown James?")

		msgs, err := s.orc.Conversations().Messages(context.Background(), resp.ConversationID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, storage.SenderTypeUser, msgs[0].SenderType)
		assert.Equal(t, storage.SenderTypeSystem, msgs[1].SenderType)
	})
}

func TestCacheOnRedis(t *testing.T) {
	skipWithoutDocker(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	s := newStack(t, setup)
	s.ingest(t, ingest.IngestRequest{
		Title: "handbook",
		Content: "Onboarding involves a laptop, a mentor, and a first-week plan. " +
			"New hires meet their team in the first week.",
	})

	first := s.query(t, uuid.New(), "what does onboarding involve?")
	assert.False(t, first.Cached)

	second := s.query(t, uuid.New(), "what does onboarding involve?")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)

	// The cached entry is keyed by tenant and query hash.
	key := cache.AnswerCacheKey(s.tenant.String(), "what does onboarding involve?")
	_, err := s.cache.Get(context.Background(), key)
	require.NoError(t, err)
}

func TestPurgeEmptiesCorpus(t *testing.T) {
	skipWithoutDocker(t)

	setup := SetupTestContainers(t)
	defer setup.Cleanup()

	s := newStack(t, setup)
	s.ingest(t, ingest.IngestRequest{
		Title:   "doc",
		Content: "Some knowledge that is about to disappear.",
	})

	resp := s.query(t, uuid.New(), "what knowledge is there?")
	assert.NotEqual(t, orchestrator.NoTenantKnowledge, resp.Response)

	require.NoError(t, s.store.Repos().Chunks.DeleteByTenant(context.Background(), s.tenant))

	after := s.query(t, uuid.New(), "what knowledge is there?")
	assert.Equal(t, orchestrator.NoTenantKnowledge, after.Response)
	assert.True(t, after.RequiresHuman)
}
