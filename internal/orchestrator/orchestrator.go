// Package orchestrator glues the query path together: guard, planner,
// retrieval, strategy dispatch, and turn persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/answer"
	"github.com/answerline/answer-engine/internal/breaker"
	"github.com/answerline/answer-engine/internal/cache"
	"github.com/answerline/answer-engine/internal/config"
	"github.com/answerline/answer-engine/internal/conversation"
	"github.com/answerline/answer-engine/internal/domain"
	"github.com/answerline/answer-engine/internal/embedding"
	"github.com/answerline/answer-engine/internal/generate"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/planner"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

// NoTenantKnowledge is the reply for tenants with no indexed content.
const NoTenantKnowledge = "No tenant knowledge available yet to answer this question. Please upload documents or escalate to a human agent."

// QueryRequest is one inbound user query.
type QueryRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID // zero synthesizes a fresh user
	Channel  string
	Message  string
}

// QueryResponse is the answer plus conversation bookkeeping.
type QueryResponse struct {
	answer.Result
	ConversationID uuid.UUID `json:"conversationId"`
	Cached         bool      `json:"cached"`
}

// Orchestrator runs the per-query pipeline. Every external dependency is
// injected and optional ones may be nil: no cache means no caching, no
// embedder or vector index means lexical retrieval only.
type Orchestrator struct {
	logger   *observability.Logger
	cfg      *config.Config
	store    *storage.Store
	convs    *conversation.Store
	cacheCli cache.Client
	embedder embedding.Embedder
	index    retrieval.VectorIndex
	engine   *answer.Engine

	embedBreaker  *breaker.Breaker
	vectorBreaker *breaker.Breaker
	cacheBreaker  *breaker.Breaker

	cacheWarnOnce sync.Once
}

// New wires an orchestrator. generator and the optional dependencies are
// wrapped in circuit breakers so one failing provider degrades that concern
// instead of the whole query path.
func New(
	logger *observability.Logger,
	cfg *config.Config,
	store *storage.Store,
	cacheCli cache.Client,
	embedder embedding.Embedder,
	index retrieval.VectorIndex,
	generator generate.Generator,
) *Orchestrator {
	bcfg := breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		CooldownPeriod:   cfg.Breaker.RecoveryTimeout,
	}

	if generator != nil {
		generator = &guardedGenerator{
			inner:   generator,
			breaker: breaker.New("generator", logger, bcfg),
		}
	}

	return &Orchestrator{
		logger:        logger,
		cfg:           cfg,
		store:         store,
		convs:         conversation.NewStore(logger, store.Repos()),
		cacheCli:      cacheCli,
		embedder:      embedder,
		index:         index,
		engine:        answer.NewEngine(logger, generator, cfg.Retrieval.PolicyTerms),
		embedBreaker:  breaker.New("embedder", logger, bcfg),
		vectorBreaker: breaker.New("vector-index", logger, bcfg),
		cacheBreaker:  breaker.New("cache", logger, bcfg),
	}
}

// Conversations exposes the conversation store for the HTTP layer.
func (o *Orchestrator) Conversations() *conversation.Store {
	return o.convs
}

// Query answers one user message. The USER message is persisted before any
// strategy runs; the SYSTEM message only after the strategy returns.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.TenantID == uuid.Nil {
		return nil, domain.Validation("tenantId is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.Validation("message is required")
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		return nil, domain.Validation("channel is required")
	}
	userID := req.UserID
	if userID == uuid.Nil {
		userID = uuid.New()
	}

	// Request-scoped logger: trace id from the transport, tenant from the
	// request.
	log := o.logger.WithContext(ctx).WithTenant(req.TenantID.String()).WithOperation("query")

	conv, err := o.convs.Acquire(ctx, req.TenantID, userID, channel)
	if err != nil {
		return nil, domain.Storage("acquire conversation", err)
	}
	if err := o.convs.AppendUser(ctx, conv.ID, message); err != nil {
		return nil, domain.Storage("record user message", err)
	}

	cc := o.convs.LoadContext(conv)
	plan := planner.Classify(message, cc.LastPerson)

	// Refusals leave no trace beyond the user message record.
	if plan.Kind == planner.KindSensitive {
		log.Info().Msg("Sensitive attribute query refused")
		return o.respond(conv, answer.Refusal(), false), nil
	}

	cacheKey := cache.AnswerCacheKey(req.TenantID.String(), message)
	if res, ok := o.cacheLookup(ctx, cacheKey, plan); ok {
		if err := o.convs.AppendSystem(ctx, conv.ID, res); err != nil {
			log.Warn().Err(err).Msg("Failed to record cached system message")
		}
		return o.respond(conv, res, true), nil
	}

	chunks, err := o.store.Repos().Chunks.ListByTenant(ctx, req.TenantID, o.cfg.Retrieval.CorpusLimit)
	if err != nil {
		return nil, domain.Storage("load tenant corpus", err)
	}
	if len(chunks) == 0 {
		res := &answer.Result{
			Response:      NoTenantKnowledge,
			Citations:     []answer.Citation{},
			Confidence:    0,
			RequiresHuman: true,
		}
		if err := o.convs.AppendSystem(ctx, conv.ID, res); err != nil {
			log.Warn().Err(err).Msg("Failed to record system message")
		}
		return o.respond(conv, res, false), nil
	}

	corpus := make([]retrieval.Document, len(chunks))
	for i, tc := range chunks {
		corpus[i] = retrieval.Document{
			ID:      tc.Chunk.ID.String(),
			Content: tc.Chunk.Content,
			Columns: tc.Columns,
		}
	}

	// Fresh retriever per request over the tenant's snapshot.
	retriever := retrieval.NewRetriever(corpus, o.cfg.Retrieval.RRFK)
	hits := retriever.Retrieve(message, o.cfg.Retrieval.TopK)

	res := o.engine.Answer(ctx, answer.Input{
		Query:         message,
		Plan:          plan,
		Hits:          hits,
		Corpus:        corpus,
		Context:       cc,
		Retrieve:      retriever.Retrieve,
		VectorSearch:  o.vectorSearch(req.TenantID),
		IndexChapters: o.indexChapters(req.TenantID),
		StoreChapters: o.storeChapters(req.TenantID),
	})

	if err := o.convs.AppendSystem(ctx, conv.ID, res); err != nil {
		log.Warn().Err(err).Msg("Failed to record system message")
	}
	if err := o.convs.SaveContext(ctx, conv, cc); err != nil {
		log.Warn().Err(err).Msg("Failed to persist conversation context")
	}
	o.cacheStore(ctx, cacheKey, plan, res)

	return o.respond(conv, res, false), nil
}

func (o *Orchestrator) respond(conv *storage.Conversation, res *answer.Result, cached bool) *QueryResponse {
	return &QueryResponse{
		Result:         *res,
		ConversationID: conv.ID,
		Cached:         cached,
	}
}

// cacheable excludes plans whose answer depends on conversation memory: a
// cached "next 2" or "her salary" would leak one conversation's state into
// another.
func cacheable(plan planner.Plan) bool {
	return !plan.FromContext
}

func (o *Orchestrator) cacheLookup(ctx context.Context, key string, plan planner.Plan) (*answer.Result, bool) {
	if o.cacheCli == nil || !cacheable(plan) {
		return nil, false
	}

	var data []byte
	var miss bool
	err := o.cacheBreaker.Do(ctx, func(ctx context.Context) error {
		d, err := o.cacheCli.Get(ctx, key)
		if errors.Is(err, cache.ErrCacheMiss) {
			// A miss is a healthy cache answering "no value".
			miss = true
			return nil
		}
		data = d
		return err
	})
	if err != nil {
		o.warnCache(err)
		return nil, false
	}
	if miss {
		return nil, false
	}

	res := &answer.Result{}
	if err := json.Unmarshal(data, res); err != nil {
		o.warnCache(err)
		return nil, false
	}
	return res, true
}

func (o *Orchestrator) cacheStore(ctx context.Context, key string, plan planner.Plan, res *answer.Result) {
	if o.cacheCli == nil || !cacheable(plan) {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		o.warnCache(err)
		return
	}
	err = o.cacheBreaker.Do(ctx, func(ctx context.Context) error {
		return o.cacheCli.Set(ctx, key, data, o.cfg.Cache.TTL)
	})
	if err != nil {
		o.warnCache(err)
	}
}

// warnCache logs a cache failure once per process; the cache is advisory and
// a flapping backend should not flood the logs.
func (o *Orchestrator) warnCache(err error) {
	o.cacheWarnOnce.Do(func() {
		o.logger.Warn().Err(err).Msg("Answer cache unavailable, continuing without it")
	})
}

// vectorSearch returns the dense side-channel closure, or nil when no
// embedder or index is configured.
func (o *Orchestrator) vectorSearch(tenantID uuid.UUID) func(ctx context.Context, query string, k int) []retrieval.ScoredDocument {
	if o.embedder == nil || o.index == nil {
		return nil
	}

	return func(ctx context.Context, query string, k int) []retrieval.ScoredDocument {
		var vector []float32
		err := o.embedBreaker.Do(ctx, func(ctx context.Context) error {
			var err error
			vector, err = o.embedder.EmbedSingle(ctx, query)
			return err
		})
		if err != nil {
			o.logger.Debug().Err(err).Msg("Query embedding unavailable, skipping vector search")
			return nil
		}

		var vhits []retrieval.Hit
		err = o.vectorBreaker.Do(ctx, func(ctx context.Context) error {
			var err error
			vhits, err = o.index.Search(ctx, tenantID, vector, k, float32(o.cfg.Vector.ScoreThreshold))
			return err
		})
		if err != nil {
			o.logger.Debug().Err(err).Msg("Vector search unavailable")
			return nil
		}

		out := make([]retrieval.ScoredDocument, 0, len(vhits))
		for _, h := range vhits {
			out = append(out, retrieval.ScoredDocument{
				Document: retrieval.Document{ID: h.ID.String(), Content: h.Payload.Content},
				Score:    float64(h.Score),
			})
		}
		return out
	}
}

// indexChapters lists chapters via the vector index scroll, or nil when no
// index is configured.
func (o *Orchestrator) indexChapters(tenantID uuid.UUID) func(ctx context.Context) []storage.ChapterRef {
	if o.index == nil {
		return nil
	}

	return func(ctx context.Context) []storage.ChapterRef {
		var refs []storage.ChapterRef
		err := o.vectorBreaker.Do(ctx, func(ctx context.Context) error {
			var err error
			refs, err = o.index.ScrollChapters(ctx, tenantID)
			return err
		})
		if err != nil {
			o.logger.Debug().Err(err).Msg("Chapter scroll unavailable")
			return nil
		}
		return refs
	}
}

// storeChapters lists chapters from stored chunk metadata.
func (o *Orchestrator) storeChapters(tenantID uuid.UUID) func(ctx context.Context) []storage.ChapterRef {
	return func(ctx context.Context) []storage.ChapterRef {
		refs, err := o.store.Repos().Chunks.Chapters(ctx, tenantID)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Chapter metadata scan failed")
			return nil
		}
		return refs
	}
}

// guardedGenerator routes generator calls through a circuit breaker. An open
// circuit fails the call; strategies already degrade on generator errors.
type guardedGenerator struct {
	inner   generate.Generator
	breaker *breaker.Breaker
}

func (g *guardedGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var out string
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Generate(ctx, system, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}

func (g *guardedGenerator) Model() string {
	return g.inner.Model()
}

var _ generate.Generator = (*guardedGenerator)(nil)
