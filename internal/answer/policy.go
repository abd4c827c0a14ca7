package answer

import (
	"sort"
	"strings"
)

// DefaultPolicyTerms is the scoring lexicon for policy summaries. Deployments
// with a different policy vocabulary override it in configuration.
func DefaultPolicyTerms() []string {
	return []string{
		"currency", "conversion", "unwithdrawn", "withdrawn", "loan", "amount",
		"approved currency", "variable spread", "minimum", "maximum",
	}
}

// policy composes a bulleted summary from the sentences of the retrieved
// contexts that score highest on the policy lexicon.
func (e *Engine) policy(in Input) *Result {
	type scoredSentence struct {
		text  string
		score float64
		order int
	}

	var scored []scoredSentence
	seen := make(map[string]struct{})
	for _, hit := range in.Hits {
		for _, sentence := range splitSentences(hit.Content) {
			key := strings.ToLower(sentence)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			hits := 0
			for _, term := range e.policyTerms {
				if strings.Contains(key, term) {
					hits++
				}
			}
			if hits == 0 {
				continue
			}

			lengthBonus := float64(len(sentence)) / 200
			if lengthBonus > 1 {
				lengthBonus = 1
			}
			scored = append(scored, scoredSentence{
				text:  sentence,
				score: float64(hits) + lengthBonus,
				order: len(scored),
			})
		}
	}

	if len(scored) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     citations(in.Hits),
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > 5 {
		scored = scored[:5]
	}

	lines := make([]string, 0, len(scored)+1)
	lines = append(lines, "Policy summary:")
	for _, s := range scored {
		lines = append(lines, "- "+s.text)
	}

	return &Result{
		Response:      strings.Join(lines, "\n"),
		Citations:     citations(in.Hits),
		Confidence:    0.85,
		RequiresHuman: false,
	}
}
