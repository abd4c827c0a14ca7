package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/answerline/answer-engine/internal/retrieval"
)

const groundedSystemPrompt = "You answer strictly from the CONTEXT provided. " +
	"If the answer is not in the context, reply exactly: " + NoInfoSentinel

// generic is the grounded retrieval-augmented strategy. When the generator
// cannot ground an answer it gets exactly one reformulation pass before the
// best raw snippet is returned.
func (e *Engine) generic(ctx context.Context, in Input) *Result {
	if len(in.Hits) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     []Citation{},
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	if e.generator == nil {
		return &Result{
			Response:      snippet(in.Hits[0].Content, 300),
			Citations:     citations(in.Hits),
			Confidence:    0.6,
			RequiresHuman: false,
		}
	}

	answer, err := e.generate(ctx, in.Query, in.Hits)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("Generation failed, returning best snippet")
		}
		return &Result{
			Response:      snippet(in.Hits[0].Content, 300),
			Citations:     citations(in.Hits),
			Confidence:    0.6,
			RequiresHuman: false,
		}
	}

	if !isSentinel(answer) {
		return &Result{
			Response:      answer,
			Citations:     citations(in.Hits),
			Confidence:    0.75,
			RequiresHuman: false,
		}
	}

	// One reformulation pass: paraphrase, re-retrieve, regenerate.
	hits := e.reformulate(ctx, in)
	if len(hits) > 0 {
		answer, err = e.generate(ctx, in.Query, hits)
		if err == nil && !isSentinel(answer) {
			return &Result{
				Response:      answer,
				Citations:     citations(hits),
				Confidence:    0.7,
				RequiresHuman: false,
			}
		}
		in.Hits = hits
	}

	return &Result{
		Response:      snippet(in.Hits[0].Content, 300),
		Citations:     citations(in.Hits),
		Confidence:    0.6,
		RequiresHuman: false,
	}
}

func (e *Engine) generate(ctx context.Context, query string, hits []retrieval.ScoredDocument) (string, error) {
	limit := len(hits)
	if limit > 6 {
		limit = 6
	}

	var b strings.Builder
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "Context %d:\n%s\n\n", i+1, hits[i].Content)
	}
	prompt := fmt.Sprintf("CONTEXT:\n%sQUESTION: %s", b.String(), query)

	out, err := e.generator.Generate(ctx, groundedSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func isSentinel(answer string) bool {
	return strings.Contains(strings.ToLower(answer), strings.ToLower(NoInfoSentinel))
}

// reformulate asks the generator for paraphrases, re-retrieves for each, and
// returns the merged, deduplicated candidate list.
func (e *Engine) reformulate(ctx context.Context, in Input) []retrieval.ScoredDocument {
	if in.Retrieve == nil {
		return nil
	}

	prompt := fmt.Sprintf(
		"Rewrite the following question as 3 to 5 differently-worded search queries, one per line, "+
			"with no numbering or commentary:\n%s", in.Query)
	out, err := e.generator.Generate(ctx, "", prompt)
	if err != nil {
		if e.logger != nil {
			e.logger.Debug().Err(err).Msg("Paraphrase generation failed")
		}
		return nil
	}

	paraphrases := parseParaphrases(out, 5)
	if len(paraphrases) == 0 {
		return nil
	}

	merged := in.Hits
	for _, p := range paraphrases {
		candidates := in.Retrieve(p, 8)
		if in.VectorSearch != nil {
			candidates = retrieval.MergeHits(candidates, in.VectorSearch(ctx, p, 6))
		}
		merged = retrieval.MergeHits(merged, candidates)
	}
	return merged
}

func parseParaphrases(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.) "))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}
