package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuchat/backend-go/internal/models"
)

func intPtr(i int) *int { return &i }

func TestSplitTextEmpty(t *testing.T) {
	chunker := NewChunker(100, 20)

	assert.Empty(t, chunker.SplitText(""))
	assert.Empty(t, chunker.SplitText("   \n\n  "))
}

func TestSplitTextShortInput(t *testing.T) {
	chunker := NewChunker(100, 20)

	chunks := chunker.SplitText("hello world")
	assert.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestSplitTextRespectsParagraphs(t *testing.T) {
	chunker := NewChunker(40, 0)

	text := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here"
	chunks := chunker.SplitText(text)

	assert.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 40)
		// 分隔符层级保证不会在段落中间硬切
		assert.NotContains(t, c.Text, "\n\n")
	}
}

func TestSplitTextChunkSizeBound(t *testing.T) {
	chunker := NewChunker(50, 10)

	words := make([]string, 100)
	for i := range words {
		words[i] = "word"
	}
	chunks := chunker.SplitText(strings.Join(words, " "))

	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 50)
	}
}

func TestSplitTextIndicesMonotonic(t *testing.T) {
	chunker := NewChunker(30, 5)

	chunks := chunker.SplitText(strings.Repeat("alpha beta gamma delta ", 20))
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitTextCoversAllContent(t *testing.T) {
	chunker := NewChunker(40, 10)

	text := "the quick brown fox jumps over the lazy dog and keeps running through the field"
	chunks := chunker.SplitText(text)

	// 去除重叠后应能覆盖原文的全部词汇
	joined := ""
	for _, c := range chunks {
		joined += " " + c.Text
	}
	for _, word := range strings.Fields(text) {
		assert.Contains(t, joined, word)
	}
}

func TestSplitTextOverlapShared(t *testing.T) {
	chunker := NewChunker(30, 12)

	chunks := chunker.SplitText("one two three four five six seven eight nine ten eleven twelve")
	if len(chunks) < 2 {
		t.Skip("input did not produce multiple chunks")
	}

	// 相邻块应共享词汇
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := prevWords[len(prevWords)-1]
		assert.Contains(t, chunks[i].Text, tail)
	}
}

func TestSplitTextUnbrokenRunFallsBackToRunes(t *testing.T) {
	chunker := NewChunker(20, 5)

	chunks := chunker.SplitText(strings.Repeat("x", 100))
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 20)
	}
}

func TestSplitPagesProvenance(t *testing.T) {
	chunker := NewChunker(1000, 0)

	pages := []models.Page{
		{PageNumber: 1, Text: "page one content"},
		{PageNumber: 2, Text: "page two content"},
		{PageNumber: 3, Text: "page three content"},
	}
	chunks := chunker.SplitPages(pages)

	assert.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotNil(t, c.PageNumber)
		assert.Equal(t, i+1, *c.PageNumber)
	}
}

func TestSplitPagesGlobalIndexAcrossPages(t *testing.T) {
	chunker := NewChunker(20, 0)

	pages := []models.Page{
		{PageNumber: 1, Text: "alpha beta gamma delta epsilon zeta eta theta"},
		{PageNumber: 2, Text: "short"},
	}
	chunks := chunker.SplitPages(pages)

	assert.GreaterOrEqual(t, len(chunks), 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, 2, *last.PageNumber)
	assert.Equal(t, "short", last.Text)
}

func TestSplitPagesSkipsEmptyPages(t *testing.T) {
	chunker := NewChunker(100, 0)

	pages := []models.Page{
		{PageNumber: 1, Text: ""},
		{PageNumber: 2, Text: "content"},
	}
	chunks := chunker.SplitPages(pages)

	assert.Len(t, chunks, 1)
	assert.Equal(t, 2, *chunks[0].PageNumber)
}

func TestSplitTimelineGreedyAccumulation(t *testing.T) {
	chunker := NewChunker(20, 0)

	segments := []models.TimeRange{
		{Start: 0, End: 2, Text: "hello there"},
		{Start: 2, End: 4, Text: "friend"},
		{Start: 4, End: 6, Text: "how are you"},
	}
	chunks := chunker.SplitTimeline(segments)

	// 前两段累积17字符，第三段会溢出，应分两块
	assert.Len(t, chunks, 2)
	assert.Equal(t, "hello there friend", chunks[0].Text)
	assert.Equal(t, "how are you", chunks[1].Text)
}

func TestSplitTimelineNeverSplitsSegment(t *testing.T) {
	chunker := NewChunker(10, 0)

	segments := []models.TimeRange{
		{Start: 0, End: 5, Text: "this segment alone exceeds the chunk size"},
		{Start: 5, End: 8, Text: "next"},
	}
	chunks := chunker.SplitTimeline(segments)

	assert.Len(t, chunks, 2)
	assert.Equal(t, "this segment alone exceeds the chunk size", chunks[0].Text)
	assert.Equal(t, "next", chunks[1].Text)
}

func TestSplitTimelineTimeRangeBounds(t *testing.T) {
	chunker := NewChunker(30, 0)

	segments := []models.TimeRange{
		{Start: 0.0, End: 2.5, Text: "first part"},
		{Start: 2.5, End: 5.0, Text: "second part"},
		{Start: 5.0, End: 7.5, Text: "third part that overflows"},
	}
	chunks := chunker.SplitTimeline(segments)

	assert.Len(t, chunks, 2)
	assert.Equal(t, 0.0, chunks[0].TimeRanges[0].Start)
	assert.Equal(t, 5.0, chunks[0].TimeRanges[len(chunks[0].TimeRanges)-1].End)
	assert.Equal(t, 5.0, chunks[1].TimeRanges[0].Start)
	assert.Equal(t, 7.5, chunks[1].TimeRanges[len(chunks[1].TimeRanges)-1].End)
}

func TestSplitTimelineCoversAllSegmentsExactly(t *testing.T) {
	chunker := NewChunker(25, 0)

	segments := []models.TimeRange{
		{Start: 0, End: 1, Text: "one"},
		{Start: 1, End: 2, Text: "two"},
		{Start: 2, End: 3, Text: "three"},
		{Start: 3, End: 4, Text: "four"},
		{Start: 4, End: 5, Text: "five"},
	}
	chunks := chunker.SplitTimeline(segments)

	var covered []models.TimeRange
	for _, c := range chunks {
		covered = append(covered, c.TimeRanges...)
	}
	assert.Equal(t, segments, covered)
}

func TestSplitTimelineEmptyInput(t *testing.T) {
	chunker := NewChunker(100, 0)
	assert.Empty(t, chunker.SplitTimeline(nil))
}
