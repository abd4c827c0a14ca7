package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextPlain(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	chunks := c.ChunkText("This is the first sentence. This is the second one.")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "This is the first sentence. This is the second one.", chunks[0].Content)
	assert.Nil(t, chunks[0].Metadata.Page)
	assert.Nil(t, chunks[0].Metadata.ChapterNum)
}

func TestChunkTextPageMetadata(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	text := "[[PAGE:1]]\nFirst page body here. More on page one.\n[[PAGE:2]]\nSecond page body here."
	chunks := c.ChunkText(text)

	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[0].Metadata.Page)
	assert.Equal(t, 1, *chunks[0].Metadata.Page)
	require.NotNil(t, chunks[1].Metadata.Page)
	assert.Equal(t, 2, *chunks[1].Metadata.Page)
}

func TestChunkTextChapterHeading(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	text := "[[PAGE:1]]\nChapter 2: Planning\nPlanning starts early. Budgets are fixed in May.\n" +
		"[[PAGE:2]]\nThe plan continues here. Nothing new is declared."
	chunks := c.ChunkText(text)

	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[0].Metadata.ChapterNum)
	assert.Equal(t, 2, *chunks[0].Metadata.ChapterNum)
	assert.Equal(t, "Planning", *chunks[0].Metadata.ChapterTitle)

	// Chapter carries forward until the next heading.
	require.NotNil(t, chunks[1].Metadata.ChapterNum)
	assert.Equal(t, 2, *chunks[1].Metadata.ChapterNum)
}

func TestChunkTextChapterHeadingVariants(t *testing.T) {
	for _, heading := range []string{
		"Chapter 3: Usage",
		"chapter 3. Usage",
		"CHAPTER 3 - Usage",
		"  Chapter 3 Usage",
	} {
		num, title, ok := detectChapter(heading + "\nBody sentence follows here.")
		require.True(t, ok, heading)
		assert.Equal(t, 3, *num, heading)
		assert.Equal(t, "Usage", *title, heading)
	}
}

func TestChunkTextChapterHeadingOnlyNearTop(t *testing.T) {
	lines := []string{"a1.", "b2.", "c3.", "d4.", "e5.", "f6.", "Chapter 9: Late"}
	_, _, ok := detectChapter(strings.Join(lines, "\n"))
	assert.False(t, ok)
}

func TestChunkTextSplitsAtTarget(t *testing.T) {
	c := NewChunker(ChunkerConfig{TargetChars: 80, OverlapSentences: 1})
	text := "Alpha sentence number one is here. Bravo sentence number two is here. " +
		"Charlie sentence number three is here. Delta sentence number four is here."
	chunks := c.ChunkText(text)

	require.Greater(t, len(chunks), 1)
	// Overlap: the first sentence of each later chunk repeats the previous tail.
	first := strings.Split(chunks[1].Content, ". ")[0]
	assert.Contains(t, chunks[0].Content, first)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunkTextDropsShortFragments(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	chunks := c.ChunkText("Ok. A. Real sentence lives here.")
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Content, "A.")
}

func TestChunkRows(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	rows := []string{
		"Employee Name,Annual Salary ($)",
		`"Akinkuolie, Sarah",95000`,
		"Smith John,64000",
	}
	columns, chunks, err := c.ChunkRows(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"employee_name", "annual_salary"}, columns)
	require.Len(t, chunks, 2)
	assert.Equal(t, `"Akinkuolie, Sarah",95000`, chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Nil(t, chunks[0].Metadata.ChapterNum)
}

func TestChunkRowsSkipsBlank(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	_, chunks, err := c.ChunkRows([]string{"a,b", ",", "x,y"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "x,y", chunks[0].Content)
}

func TestChunkRowsEmpty(t *testing.T) {
	c := NewChunker(ChunkerConfig{})
	_, _, err := c.ChunkRows(nil)
	assert.Error(t, err)
}

func TestNormalizeColumn(t *testing.T) {
	assert.Equal(t, "employee_name", NormalizeColumn("Employee Name"))
	assert.Equal(t, "annual_salary", NormalizeColumn(" Annual  Salary ($) "))
	assert.Equal(t, "dept", NormalizeColumn("DEPT"))
}
