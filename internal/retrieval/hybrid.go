package retrieval

import (
	"math"
	"sort"
	"strings"
)

// Document is one corpus entry as seen by the lexical retriever.
type Document struct {
	ID      string
	Content string
	Columns []string
}

// ScoredDocument is a retrieved document with its fused rank score.
type ScoredDocument struct {
	Document
	Score float64
}

// Retriever scores a fixed corpus snapshot against queries. It is cheap to
// construct, so callers build one per request from the current corpus.
type Retriever struct {
	docs   []Document
	tokens [][]string
	sets   []map[string]struct{}
	df     map[string]int
	avgLen float64
	rrfK   float64
}

// NewRetriever indexes the corpus snapshot.
func NewRetriever(docs []Document, rrfK int) *Retriever {
	if rrfK <= 0 {
		rrfK = 60
	}

	r := &Retriever{
		docs:   docs,
		tokens: make([][]string, len(docs)),
		sets:   make([]map[string]struct{}, len(docs)),
		df:     make(map[string]int),
		rrfK:   float64(rrfK),
	}

	totalLen := 0
	for i, doc := range docs {
		toks := tokenize(doc.Content)
		r.tokens[i] = toks
		totalLen += len(toks)

		set := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			set[t] = struct{}{}
		}
		r.sets[i] = set
		for t := range set {
			r.df[t]++
		}
	}
	if len(docs) > 0 {
		r.avgLen = float64(totalLen) / float64(len(docs))
	}
	return r
}

// Retrieve fuses the lexical and heuristic-dense rankings with reciprocal
// rank fusion and returns the top k documents.
func (r *Retriever) Retrieve(query string, k int) []ScoredDocument {
	if len(r.docs) == 0 || k <= 0 {
		return nil
	}

	lexical := r.rankBy(r.bm25Scores(query))
	dense := r.rankBy(r.denseScores(query))

	// Documents containing the query verbatim outrank everything.
	exact := r.exactMatches(query, 3)
	lexical = spliceFront(lexical, exact)
	dense = spliceFront(dense, exact)

	fused := make(map[int]float64)
	for rank, idx := range lexical {
		fused[idx] += 1 / (r.rrfK + float64(rank+1))
	}
	for rank, idx := range dense {
		fused[idx] += 1 / (r.rrfK + float64(rank+1))
	}

	order := make([]int, 0, len(fused))
	for idx := range fused {
		order = append(order, idx)
	}
	sort.Slice(order, func(i, j int) bool {
		if fused[order[i]] != fused[order[j]] {
			return fused[order[i]] > fused[order[j]]
		}
		return order[i] < order[j]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]ScoredDocument, k)
	for i := 0; i < k; i++ {
		results[i] = ScoredDocument{
			Document: r.docs[order[i]],
			Score:    fused[order[i]],
		}
	}
	return results
}

// bm25Scores computes BM25 (k1=1.5, b=0.75) with keyword boosts on top.
func (r *Retriever) bm25Scores(query string) []float64 {
	const (
		k1 = 1.5
		b  = 0.75
	)

	queryTokens := tokenize(query)
	queryLower := strings.ToLower(query)
	n := float64(len(r.docs))

	scores := make([]float64, len(r.docs))
	for i := range r.docs {
		docLen := float64(len(r.tokens[i]))

		tf := make(map[string]int)
		for _, t := range r.tokens[i] {
			tf[t]++
		}

		var score float64
		for _, q := range queryTokens {
			freq := float64(tf[q])
			if freq == 0 {
				continue
			}
			idf := math.Log((n - 1 + 0.5) / (1 + 0.5))
			if idf < 0 {
				idf = 0
			}
			denom := freq + k1*(1-b+b*docLen/math.Max(r.avgLen, 1))
			score += idf * (freq * (k1 + 1)) / denom
		}

		contentLower := strings.ToLower(r.docs[i].Content)
		matching := 0
		for _, q := range queryTokens {
			if _, ok := r.sets[i][q]; ok {
				matching++
			}
		}
		switch {
		case queryLower != "" && strings.Contains(contentLower, queryLower):
			score += 10
		case len(queryTokens) > 0 && matching == len(queryTokens):
			score += 5
		default:
			score += float64(matching)
		}

		scores[i] = score
	}
	return scores
}

// denseScores approximates semantic similarity with token-set overlap plus a
// length affinity term.
func (r *Retriever) denseScores(query string) []float64 {
	querySet := make(map[string]struct{})
	for _, t := range tokenize(query) {
		querySet[t] = struct{}{}
	}
	queryLen := len(query)

	scores := make([]float64, len(r.docs))
	for i := range r.docs {
		scores[i] = 2*jaccard(querySet, r.sets[i]) +
			1/(1+math.Abs(float64(len(r.docs[i].Content)-queryLen))/math.Max(float64(queryLen), 1))
	}
	return scores
}

// exactMatches returns up to limit document indexes containing the full
// query as a substring, in corpus order.
func (r *Retriever) exactMatches(query string, limit int) []int {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return nil
	}

	var matches []int
	for i := range r.docs {
		if strings.Contains(strings.ToLower(r.docs[i].Content), queryLower) {
			matches = append(matches, i)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches
}

// rankBy returns document indexes ordered by descending score, ties broken
// by corpus order.
func (r *Retriever) rankBy(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}

// spliceFront moves the given indexes to the front of the ranking,
// preserving the relative order of the rest.
func spliceFront(ranking []int, front []int) []int {
	if len(front) == 0 {
		return ranking
	}
	inFront := make(map[int]struct{}, len(front))
	for _, idx := range front {
		inFront[idx] = struct{}{}
	}

	out := make([]int, 0, len(ranking))
	out = append(out, front...)
	for _, idx := range ranking {
		if _, ok := inFront[idx]; !ok {
			out = append(out, idx)
		}
	}
	return out
}

// MergeHits appends vector side-channel results to the fused list, then
// deduplicates by a lowercased 200-character content prefix and caps the
// result at 20 entries. Earlier entries win.
func MergeHits(fused []ScoredDocument, vector []ScoredDocument) []ScoredDocument {
	const maxMerged = 20

	merged := make([]ScoredDocument, 0, len(fused)+len(vector))
	seen := make(map[string]struct{})

	add := func(doc ScoredDocument) {
		key := dedupKey(doc.Content)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, doc)
	}

	for _, doc := range fused {
		add(doc)
	}
	for _, doc := range vector {
		add(doc)
	}

	if len(merged) > maxMerged {
		merged = merged[:maxMerged]
	}
	return merged
}

func dedupKey(content string) string {
	key := strings.ToLower(content)
	if len(key) > 200 {
		key = key[:200]
	}
	return key
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
