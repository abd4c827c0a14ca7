// Package answer implements the strategies that turn a classified plan and
// retrieved context into a user-facing response.
package answer

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/answerline/answer-engine/internal/generate"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/planner"
	"github.com/answerline/answer-engine/internal/retrieval"
	"github.com/answerline/answer-engine/internal/storage"
)

// NoInfoSentinel is the fixed reply for answers that cannot be grounded in
// the tenant's indexed content.
const NoInfoSentinel = "I don't have that information in the current database."

// Result is the outcome of one answer strategy.
type Result struct {
	Response      string     `json:"response"`
	Citations     []Citation `json:"citations"`
	Confidence    float64    `json:"confidence"`
	RequiresHuman bool       `json:"requiresHuman"`
}

// Citation points at one retrieved context backing the answer.
type Citation struct {
	Source    string  `json:"source"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
	Snippet   string  `json:"snippet"`
}

// ConvContext is the conversation's mutable memory. Strategies read it for
// continuity and update it with what the turn established.
type ConvContext struct {
	LastPerson    string   `json:"last_person,omitempty"`
	LastChapter   int      `json:"last_chapter,omitempty"`
	LastListTopic string   `json:"last_list_topic,omitempty"`
	LastListItems []string `json:"last_list_items,omitempty"`
	LastListIndex int      `json:"last_list_index,omitempty"`
}

// Input carries everything one strategy invocation may need. The function
// fields are per-request closures so strategies stay free of storage and
// transport concerns.
type Input struct {
	Query   string
	Plan    planner.Plan
	Hits    []retrieval.ScoredDocument
	Corpus  []retrieval.Document
	Context *ConvContext

	// Retrieve re-runs hybrid retrieval for a reformulated query.
	Retrieve func(query string, k int) []retrieval.ScoredDocument
	// VectorSearch queries the dense side channel; may be nil.
	VectorSearch func(ctx context.Context, query string, k int) []retrieval.ScoredDocument
	// IndexChapters lists chapters known to the vector index; may be nil.
	IndexChapters func(ctx context.Context) []storage.ChapterRef
	// StoreChapters lists chapters from stored chunk metadata; may be nil.
	StoreChapters func(ctx context.Context) []storage.ChapterRef
}

// Engine dispatches plans to strategies.
type Engine struct {
	logger      *observability.Logger
	generator   generate.Generator // nil disables generator-backed strategies
	policyTerms []string
}

// NewEngine creates an answer engine. generator may be nil.
func NewEngine(logger *observability.Logger, generator generate.Generator, policyTerms []string) *Engine {
	if len(policyTerms) == 0 {
		policyTerms = DefaultPolicyTerms()
	}
	return &Engine{
		logger:      logger,
		generator:   generator,
		policyTerms: policyTerms,
	}
}

// Answer runs the strategy selected by the plan.
func (e *Engine) Answer(ctx context.Context, in Input) *Result {
	if in.Context == nil {
		in.Context = &ConvContext{}
	}

	switch in.Plan.Kind {
	case planner.KindSensitive:
		return Refusal()
	case planner.KindTabular:
		return e.tabular(in)
	case planner.KindChapterNav:
		return e.chapterNav(in)
	case planner.KindChapterCount:
		return e.chapterCount(ctx, in)
	case planner.KindChapterTitles:
		return e.chapterTitles(ctx, in)
	case planner.KindChapterSummary:
		return e.chapterSummary(ctx, in)
	case planner.KindList:
		return e.list(in)
	case planner.KindPolicy:
		return e.policy(in)
	default:
		return e.generic(ctx, in)
	}
}

// citations builds up to six citations over the retrieved contexts.
func citations(hits []retrieval.ScoredDocument) []Citation {
	n := len(hits)
	if n > 6 {
		n = 6
	}

	out := make([]Citation, n)
	for i := 0; i < n; i++ {
		out[i] = citationAt(hits[i], i)
	}
	return out
}

func citationAt(hit retrieval.ScoredDocument, i int) Citation {
	return Citation{
		Source:    "chunk_" + strconv.Itoa(i),
		Title:     "Context " + strconv.Itoa(i+1),
		Relevance: 0.8,
		Snippet:   snippet(hit.Content, 160),
	}
}

func snippet(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multibyte
	// character.
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
