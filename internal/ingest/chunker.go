// Package ingest turns extracted document text into stored, embedded chunks.
package ingest

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/answerline/answer-engine/internal/storage"
)

// Chunk is a single unit of indexable content with positional metadata.
type Chunk struct {
	Index    int
	Content  string
	Metadata storage.ChunkMetadata
}

// ChunkerConfig controls chunk sizing.
type ChunkerConfig struct {
	TargetChars      int
	OverlapSentences int
}

// Chunker splits extracted text into sentence-aligned chunks. Page markers
// and chapter headings are recovered into chunk metadata so chapter-level
// queries can be answered without re-reading documents.
type Chunker struct {
	targetChars      int
	overlapSentences int
}

// NewChunker creates a chunker; zero config fields take the defaults.
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.TargetChars <= 0 {
		cfg.TargetChars = 1400
	}
	if cfg.OverlapSentences < 0 {
		cfg.OverlapSentences = 0
	}
	return &Chunker{
		targetChars:      cfg.TargetChars,
		overlapSentences: cfg.OverlapSentences,
	}
}

var pageMarker = regexp.MustCompile(`\[\[PAGE:(\d+)\]\]`)

var chapterHeading = regexp.MustCompile(`(?i)^\s*chapter\s+(\d+)\s*[\.\:\-]?\s*(.*)$`)

type pageSegment struct {
	num  *int
	body string
}

// ChunkText splits prose into chunks. Chunks never span a page boundary and
// carry the page number plus the chapter heading in effect at that point.
func (c *Chunker) ChunkText(text string) []Chunk {
	var chunks []Chunk
	var chapterNum *int
	var chapterTitle *string

	for _, seg := range splitPages(text) {
		if num, title, ok := detectChapter(seg.body); ok {
			chapterNum, chapterTitle = num, title
		}

		sentences := splitSentences(seg.body)
		if len(sentences) == 0 {
			continue
		}

		meta := storage.ChunkMetadata{
			Page:         seg.num,
			ChapterNum:   chapterNum,
			ChapterTitle: chapterTitle,
		}

		var current []string
		currentLen := 0
		flush := func() {
			if len(current) == 0 {
				return
			}
			chunks = append(chunks, Chunk{
				Index:    len(chunks),
				Content:  strings.Join(current, " "),
				Metadata: meta,
			})
			// Seed the next chunk with the trailing sentences for continuity.
			overlap := c.overlapSentences
			if overlap > len(current) {
				overlap = len(current)
			}
			current = append([]string(nil), current[len(current)-overlap:]...)
			currentLen = 0
			for _, s := range current {
				currentLen += len(s) + 1
			}
		}

		for _, sentence := range sentences {
			if currentLen > 0 && currentLen+len(sentence) > c.targetChars {
				flush()
				// Overlap alone filling the budget would loop forever.
				if currentLen+len(sentence) > c.targetChars {
					current = nil
					currentLen = 0
				}
			}
			current = append(current, sentence)
			currentLen += len(sentence) + 1
		}
		if len(current) > 0 {
			chunks = append(chunks, Chunk{
				Index:    len(chunks),
				Content:  strings.Join(current, " "),
				Metadata: meta,
			})
		}
	}
	return chunks
}

// ChunkRows turns serialized tabular rows into one chunk per data row and
// returns the normalized header columns.
func (c *Chunker) ChunkRows(rows []string) ([]string, []Chunk, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("tabular document has no rows")
	}

	header, err := csv.NewReader(strings.NewReader(rows[0])).Read()
	if err != nil {
		return nil, nil, fmt.Errorf("parse header row: %w", err)
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = NormalizeColumn(col)
	}

	var chunks []Chunk
	for _, row := range rows[1:] {
		if strings.TrimSpace(strings.ReplaceAll(row, ",", "")) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: row,
		})
	}
	return columns, chunks, nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeColumn lowercases a header cell and squashes every run of
// non-alphanumeric characters to a single underscore.
func NormalizeColumn(col string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(col), "_"), "_")
}

// splitPages partitions text on [[PAGE:n]] markers. Text before the first
// marker, or an entire document without markers, has no page number.
func splitPages(text string) []pageSegment {
	matches := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []pageSegment{{body: text}}
	}

	var segs []pageSegment
	if lead := text[:matches[0][0]]; strings.TrimSpace(lead) != "" {
		segs = append(segs, pageSegment{body: lead})
	}
	for i, m := range matches {
		num, _ := strconv.Atoi(text[m[2]:m[3]])
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		n := num
		segs = append(segs, pageSegment{num: &n, body: text[m[1]:end]})
	}
	return segs
}

// detectChapter scans the first six non-blank lines for a chapter heading.
func detectChapter(body string) (*int, *string, bool) {
	seen := 0
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if m := chapterHeading.FindStringSubmatch(line); m != nil {
			num, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			title := strings.TrimSpace(m[2])
			return &num, &title, true
		}
		if seen >= 6 {
			break
		}
	}
	return nil, nil, false
}

// splitSentences breaks prose on terminal punctuation followed by whitespace
// and an uppercase letter or opening bracket. Fragments shorter than three
// characters are dropped.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var sentences []string
	start := 0

	// Interior whitespace is preserved: line structure inside a sentence
	// (bullet lists, headings) must survive into the chunk.
	appendSentence := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if len(s) >= 3 {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Swallow a run of terminal punctuation.
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			j++
		}
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k == j || k >= len(runes) {
			i = j - 1
			continue
		}
		next := runes[k]
		if unicode.IsUpper(next) || next == '[' || next == '(' || next == '"' {
			appendSentence(j)
			i = k - 1
		} else {
			i = j - 1
		}
	}
	if start < len(runes) {
		appendSentence(len(runes))
	}
	return sentences
}
