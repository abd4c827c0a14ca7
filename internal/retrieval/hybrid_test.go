package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus(contents ...string) []Document {
	docs := make([]Document, len(contents))
	for i, c := range contents {
		docs[i] = Document{ID: fmt.Sprintf("doc_%d", i), Content: c}
	}
	return docs
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	r := NewRetriever(nil, 0)
	assert.Empty(t, r.Retrieve("anything", 5))
}

func TestRetrieveExactSubstringWins(t *testing.T) {
	docs := corpus(
		"Completely unrelated text about gardening and soil quality.",
		"The loan conversion policy applies to unwithdrawn amounts only.",
		"Another filler document about travel budgets and hotels.",
	)
	r := NewRetriever(docs, 60)

	results := r.Retrieve("conversion policy", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc_1", results[0].ID)
}

func TestRetrieveAllTermsOutranksPartial(t *testing.T) {
	docs := corpus(
		"currency mentioned once here",
		"currency conversion discussed together in this document",
		"nothing relevant at all",
	)
	r := NewRetriever(docs, 60)

	results := r.Retrieve("currency conversion rules", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc_1", results[0].ID)
}

func TestRetrieveTopKBound(t *testing.T) {
	docs := corpus("alpha one", "alpha two", "alpha three", "alpha four")
	r := NewRetriever(docs, 60)

	assert.Len(t, r.Retrieve("alpha", 2), 2)
	assert.Len(t, r.Retrieve("alpha", 10), 4)
}

func TestRetrieveRRFMonotonicity(t *testing.T) {
	// A document ranked first in both lists must carry the highest fused
	// score.
	docs := corpus(
		"the annual budget report covers the annual budget in detail",
		"a short note",
		"unrelated musings about weather patterns and forecasting",
	)
	r := NewRetriever(docs, 60)

	results := r.Retrieve("annual budget report", 3)
	require.Len(t, results, 3)
	assert.Equal(t, "doc_0", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	docs := corpus("same text", "same text", "same text")
	r := NewRetriever(docs, 60)

	first := r.Retrieve("same text", 3)
	second := r.Retrieve("same text", 3)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestMergeHitsDedupAndCap(t *testing.T) {
	var fused, vector []ScoredDocument
	for i := 0; i < 15; i++ {
		fused = append(fused, ScoredDocument{
			Document: Document{ID: fmt.Sprintf("f%d", i), Content: fmt.Sprintf("fused content %d", i)},
			Score:    1,
		})
	}
	// First vector hit duplicates a fused doc's content prefix.
	vector = append(vector, ScoredDocument{
		Document: Document{ID: "dup", Content: "FUSED CONTENT 3"},
	})
	for i := 0; i < 10; i++ {
		vector = append(vector, ScoredDocument{
			Document: Document{ID: fmt.Sprintf("v%d", i), Content: fmt.Sprintf("vector content %d", i)},
		})
	}

	merged := MergeHits(fused, vector)
	assert.Len(t, merged, 20)
	for _, doc := range merged {
		assert.NotEqual(t, "dup", doc.ID)
	}
	// Fused hits keep their position ahead of vector hits.
	assert.Equal(t, "f0", merged[0].ID)
	assert.Equal(t, "v0", merged[15].ID)
}

func TestMergeHitsPrefixKey(t *testing.T) {
	long := strings.Repeat("x", 200)
	a := ScoredDocument{Document: Document{ID: "a", Content: long + " tail one"}}
	b := ScoredDocument{Document: Document{ID: "b", Content: long + " tail two"}}

	merged := MergeHits([]ScoredDocument{a}, []ScoredDocument{b})
	// Identical 200-char prefixes collapse to one entry.
	require.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].ID)
}
