package chunking

import (
	"strings"

	"github.com/docuchat/backend-go/internal/models"
)

// 分隔符层级：段落 → 行 → 空格 → 字符
var separators = []string{"\n\n", "\n", " ", ""}

// Chunk 表示分块后的文本及其来源信息
type Chunk struct {
	Index      int
	Text       string
	PageNumber *int
	TimeRanges []models.TimeRange
}

// Chunker 文本分块器
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// SplitText 按分隔符层级递归切分文本
func (c *Chunker) SplitText(text string) []Chunk {
	pieces := c.splitRecursive(text, separators)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  p,
		})
	}
	return chunks
}

// SplitPages 逐页切分，chunk索引跨页单调递增
func (c *Chunker) SplitPages(pages []models.Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		pageNum := page.PageNumber
		for _, piece := range c.splitRecursive(page.Text, separators) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			n := pageNum
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Text:       piece,
				PageNumber: &n,
			})
		}
	}
	return chunks
}

// SplitTimeline 按时间轴片段贪心累积切分，单个片段永不拆开
func (c *Chunker) SplitTimeline(segments []models.TimeRange) []Chunk {
	var chunks []Chunk

	var texts []string
	var ranges []models.TimeRange
	total := 0

	flush := func() {
		if len(texts) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.Join(texts, " "),
			TimeRanges: append([]models.TimeRange(nil), ranges...),
		})
		texts = nil
		ranges = nil
		total = 0
	}

	for _, seg := range segments {
		segLen := len([]rune(seg.Text))
		if total+segLen > c.chunkSize && len(texts) > 0 {
			flush()
		}
		texts = append(texts, seg.Text)
		ranges = append(ranges, seg)
		total += segLen
	}
	flush()

	return chunks
}

// splitRecursive 选用文本中出现的最高层级分隔符切分，超长片段降级到下一层级
func (c *Chunker) splitRecursive(text string, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sep := seps[len(seps)-1]
	var remaining []string
	for i, s := range seps {
		if s == "" {
			sep = ""
			remaining = nil
			break
		}
		if strings.Contains(text, s) {
			sep = s
			remaining = seps[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		return c.splitByRunes(text)
	}
	splits = strings.Split(text, sep)

	var result []string
	var mergeable []string
	for _, s := range splits {
		if len([]rune(s)) <= c.chunkSize {
			mergeable = append(mergeable, s)
			continue
		}
		if len(mergeable) > 0 {
			result = append(result, c.merge(mergeable, sep)...)
			mergeable = nil
		}
		if len(remaining) == 0 {
			result = append(result, s)
		} else {
			result = append(result, c.splitRecursive(s, remaining)...)
		}
	}
	if len(mergeable) > 0 {
		result = append(result, c.merge(mergeable, sep)...)
	}
	return result
}

// merge 将切分片段拼接为不超过chunkSize的块，相邻块共享overlap字符
func (c *Chunker) merge(splits []string, sep string) []string {
	sepLen := len([]rune(sep))

	var docs []string
	var current []string
	total := 0

	for _, s := range splits {
		l := len([]rune(s))
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+l+extra > c.chunkSize && len(current) > 0 {
			doc := strings.TrimSpace(strings.Join(current, sep))
			if doc != "" {
				docs = append(docs, doc)
			}
			// 从头部弹出直到剩余长度落入overlap窗口
			for total > c.chunkOverlap || (total+l+extra > c.chunkSize && total > 0) {
				head := len([]rune(current[0]))
				total -= head
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		current = append(current, s)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}

	doc := strings.TrimSpace(strings.Join(current, sep))
	if doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitByRunes 字符级兜底切分，步长为chunkSize-overlap
func (c *Chunker) splitByRunes(text string) []string {
	runes := []rune(text)
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return pieces
}
