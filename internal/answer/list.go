package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/answerline/answer-engine/internal/planner"
	"github.com/answerline/answer-engine/internal/retrieval"
)

// NoFurtherItems is the reply when a list continuation has run past the end
// of the remembered list. The stored position is left unchanged so a repeat
// request behaves identically.
const NoFurtherItems = "No further items."

var listItemRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[\.)])\s+(.+)$`)

// list answers "first N <topic>" requests and "next N" continuations from
// bullet or numbered lines found in the retrieved contexts.
func (e *Engine) list(in Input) *Result {
	cc := in.Context

	continuing := in.Plan.Mode == planner.ListNext &&
		len(cc.LastListItems) > 0 &&
		(in.Plan.Topic == "" || strings.EqualFold(in.Plan.Topic, cc.LastListTopic))

	var items []string
	var startIdx int
	if continuing {
		items = cc.LastListItems
		startIdx = cc.LastListIndex
	} else {
		items = extractListItems(in.Hits, 6)
		startIdx = 0
	}

	if len(items) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     citations(in.Hits),
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	if startIdx >= len(items) {
		return &Result{
			Response:      NoFurtherItems,
			Citations:     citations(in.Hits),
			Confidence:    0.5,
			RequiresHuman: false,
		}
	}

	endIdx := startIdx + in.Plan.N
	if endIdx > len(items) {
		endIdx = len(items)
	}

	lines := make([]string, 0, endIdx-startIdx)
	for i := startIdx; i < endIdx; i++ {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, items[i]))
	}

	topic := in.Plan.Topic
	if topic == "" {
		topic = cc.LastListTopic
	}
	cc.LastListTopic = topic
	cc.LastListItems = items
	cc.LastListIndex = endIdx

	return &Result{
		Response:      strings.Join(lines, "\n"),
		Citations:     citations(in.Hits),
		Confidence:    0.8,
		RequiresHuman: false,
	}
}

// extractListItems collects bullet and numbered lines from the top contexts,
// deduplicated in order.
func extractListItems(hits []retrieval.ScoredDocument, limit int) []string {
	if limit > len(hits) {
		limit = len(hits)
	}

	var items []string
	seen := make(map[string]struct{})
	for _, hit := range hits[:limit] {
		for _, line := range strings.Split(hit.Content, "\n") {
			m := listItemRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			item := strings.TrimSpace(m[1])
			key := strings.ToLower(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, item)
		}
	}
	return items
}
