package answer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/answerline/answer-engine/internal/storage"
)

var chapterRefRe = regexp.MustCompile(`(?i)\bchapter\s+(\d+)\s*[\.\:\-]?\s*`)

// chapterNav answers "next chapter after chapter N" by locating chapter N+1
// in the retrieved text (or the whole corpus when retrieval came back empty).
func (e *Engine) chapterNav(in Input) *Result {
	texts := make([]string, 0, 8)
	limit := len(in.Hits)
	if limit > 8 {
		limit = 8
	}
	for _, hit := range in.Hits[:limit] {
		texts = append(texts, hit.Content)
	}
	if len(texts) == 0 {
		for _, doc := range in.Corpus {
			texts = append(texts, doc.Content)
		}
	}

	chapters := extractChapters(texts)
	next := in.Plan.Base + 1
	for _, ch := range chapters {
		if ch.Num == next {
			in.Context.LastChapter = next
			return &Result{
				Response:      fmt.Sprintf("The next chapter is Chapter %d: %s.", ch.Num, ch.Title),
				Citations:     citations(in.Hits),
				Confidence:    0.9,
				RequiresHuman: false,
			}
		}
	}

	return &Result{
		Response:      NoInfoSentinel,
		Citations:     citations(in.Hits),
		Confidence:    0.2,
		RequiresHuman: false,
	}
}

// chapterSource resolves the tenant's chapters, preferring the vector
// index's scroll for completeness, then stored chunk metadata, then regex
// extraction over retrieved text.
func (e *Engine) chapterSource(ctx context.Context, in Input) ([]storage.ChapterRef, float64) {
	if in.IndexChapters != nil {
		if chapters := in.IndexChapters(ctx); len(chapters) > 0 {
			return chapters, 0.7
		}
	}
	if in.StoreChapters != nil {
		if chapters := in.StoreChapters(ctx); len(chapters) > 0 {
			return chapters, 0.65
		}
	}

	texts := make([]string, 0, len(in.Hits))
	for _, hit := range in.Hits {
		texts = append(texts, hit.Content)
	}
	return extractChapters(texts), 0.65
}

func (e *Engine) chapterCount(ctx context.Context, in Input) *Result {
	chapters, confidence := e.chapterSource(ctx, in)
	if len(chapters) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     citations(in.Hits),
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	return &Result{
		Response: fmt.Sprintf(
			"There are at least %d chapters indexed from the uploaded documents.", len(chapters)),
		Citations:     citations(in.Hits),
		Confidence:    confidence,
		RequiresHuman: false,
	}
}

func (e *Engine) chapterTitles(ctx context.Context, in Input) *Result {
	chapters, _ := e.chapterSource(ctx, in)
	if len(chapters) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     citations(in.Hits),
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	limit := in.Plan.N
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	if limit > len(chapters) {
		limit = len(chapters)
	}

	lines := make([]string, limit)
	for i := 0; i < limit; i++ {
		lines[i] = fmt.Sprintf("- Chapter %d: %s", chapters[i].Num, chapters[i].Title)
	}

	return &Result{
		Response:      strings.Join(lines, "\n"),
		Citations:     citations(in.Hits),
		Confidence:    0.75,
		RequiresHuman: false,
	}
}

func (e *Engine) chapterSummary(ctx context.Context, in Input) *Result {
	target := in.Plan.Chapter
	marker := "chapter " + strconv.Itoa(target)

	var matching []string
	for _, hit := range in.Hits {
		if strings.Contains(strings.ToLower(hit.Content), marker) {
			matching = append(matching, hit.Content)
		}
	}
	if len(matching) == 0 {
		for _, doc := range in.Corpus {
			if strings.Contains(strings.ToLower(doc.Content), marker) {
				matching = append(matching, doc.Content)
			}
		}
	}
	if len(matching) == 0 {
		return &Result{
			Response:      NoInfoSentinel,
			Citations:     citations(in.Hits),
			Confidence:    0.2,
			RequiresHuman: false,
		}
	}

	bullets := e.summarize(ctx, target, matching)
	return &Result{
		Response:      fmt.Sprintf("Summary of Chapter %d:\n%s", target, strings.Join(bullets, "\n")),
		Citations:     citations(in.Hits),
		Confidence:    0.8,
		RequiresHuman: false,
	}
}

// summarize produces 5-7 bullet points, via the generator when available and
// by leading sentences otherwise.
func (e *Engine) summarize(ctx context.Context, chapter int, texts []string) []string {
	combined := strings.Join(texts, "\n\n")
	if len(combined) > 6000 {
		combined = combined[:6000]
	}

	if e.generator != nil {
		prompt := fmt.Sprintf(
			"Summarize chapter %d from the following material in 5 to 7 concise bullet points. "+
				"Begin each point with \"- \" and use only the material provided.\n\n%s",
			chapter, combined)
		out, err := e.generator.Generate(ctx, "You summarize documents faithfully.", prompt)
		if err == nil {
			bullets := bulletLines(out)
			if len(bullets) > 0 {
				return bullets
			}
		} else if e.logger != nil {
			e.logger.Warn().Err(err).Msg("Generator summary failed, using extractive fallback")
		}
	}

	sentences := splitSentences(combined)
	if len(sentences) > 5 {
		sentences = sentences[:5]
	}
	bullets := make([]string, len(sentences))
	for i, s := range sentences {
		bullets[i] = "- " + s
	}
	return bullets
}

func bulletLines(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			bullets = append(bullets, "- "+strings.TrimSpace(line[2:]))
		}
	}
	if len(bullets) > 7 {
		bullets = bullets[:7]
	}
	return bullets
}

// extractChapters pulls distinct chapter headings out of free text, sorted
// by chapter number. Chunk text flattens line breaks, so the title runs from
// the heading match to the next sentence break, line break, or heading.
func extractChapters(texts []string) []storage.ChapterRef {
	seen := make(map[int]string)
	for _, text := range texts {
		locs := chapterRefRe.FindAllStringSubmatchIndex(text, -1)
		for i, m := range locs {
			num, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil {
				continue
			}

			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			title := text[m[1]:end]
			if cut := strings.IndexAny(title, "\n.!?"); cut >= 0 {
				title = title[:cut]
			}
			title = strings.TrimSpace(strings.Trim(title, " :-"))

			if _, ok := seen[num]; !ok || title != "" {
				seen[num] = title
			}
		}
	}

	chapters := make([]storage.ChapterRef, 0, len(seen))
	for num, title := range seen {
		chapters = append(chapters, storage.ChapterRef{Num: num, Title: title})
	}
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Num < chapters[j].Num })
	return chapters
}
