package generation

import (
	"context"
	"sort"
	"strings"
)

// InsufficientInfoAnswer 上下文不足时的固定回答
const InsufficientInfoAnswer = "I don't have enough information to answer that."

const maxExtractedSentences = 3

// LocalGenerator 本地抽取式生成器，无外部依赖
// 从提示词的上下文中挑选与问题词汇重叠最高的句子作为回答
type LocalGenerator struct{}

// NewLocalGenerator 创建本地生成器
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

func (g *LocalGenerator) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if content, ok := summaryContent(messages); ok {
		return extractiveSummary(content), nil
	}

	question, context := splitPrompt(messages)
	if strings.TrimSpace(context) == "" {
		return InsufficientInfoAnswer, nil
	}

	questionTokens := tokenSet(question)
	sentences := splitSentences(context)

	type scored struct {
		position int
		sentence string
		score    int
	}
	var candidates []scored
	for i, s := range sentences {
		score := 0
		for token := range tokenSet(s) {
			if questionTokens[token] {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{position: i, sentence: s, score: score})
		}
	}
	if len(candidates) == 0 {
		return InsufficientInfoAnswer, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > maxExtractedSentences {
		candidates = candidates[:maxExtractedSentences]
	}
	// 按原文顺序输出选中句子
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].position < candidates[j].position })

	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = strings.TrimSpace(c.sentence)
	}
	return strings.Join(parts, " "), nil
}

// Stream 本地生成器无原生流式能力，整段生成后一次性回调
func (g *LocalGenerator) Stream(ctx context.Context, messages []Message, onDelta func(content string) error) error {
	answer, err := g.Complete(ctx, messages)
	if err != nil {
		return err
	}
	return onDelta(answer)
}

func (g *LocalGenerator) Streaming() bool {
	return false
}

// splitPrompt 从消息序列中取出问题和上下文
// 支持两种提示词形态：上下文内嵌在user消息中（"Context...Question:..."），
// 或上下文在system消息的"Context:"之后
func splitPrompt(messages []Message) (question, context string) {
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			lastUser = messages[i].Content
			break
		}
	}

	if qIdx := strings.Index(lastUser, "Question:"); qIdx >= 0 {
		q := lastUser[qIdx+len("Question:"):]
		if end := strings.Index(q, "Answer"); end >= 0 {
			q = q[:end]
		}
		question = strings.TrimSpace(q)

		if cIdx := strings.Index(lastUser, "Context"); cIdx >= 0 && cIdx < qIdx {
			c := lastUser[cIdx:qIdx]
			if colon := strings.Index(c, ":"); colon >= 0 {
				c = c[colon+1:]
			}
			context = c
		}
		return question, context
	}

	question = lastUser
	for _, m := range messages {
		if m.Role != RoleSystem {
			continue
		}
		if idx := strings.Index(m.Content, "Context:"); idx >= 0 {
			context = m.Content[idx+len("Context:"):]
		}
	}
	return question, context
}

// summaryContent 识别摘要提示词并取出待摘要正文
func summaryContent(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		content := messages[i].Content
		if !strings.Contains(content, "Summarize the following") {
			return "", false
		}
		idx := strings.Index(content, "Content:")
		if idx < 0 {
			return "", false
		}
		body := content[idx+len("Content:"):]
		if end := strings.LastIndex(body, "Summary:"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body), true
	}
	return "", false
}

// extractiveSummary 取正文开头的若干句子作为朴素摘要
func extractiveSummary(content string) string {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return InsufficientInfoAnswer
	}
	limit := maxExtractedSentences * 2
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	return strings.Join(sentences, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var builder strings.Builder
	for _, r := range text {
		builder.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(builder.String())
			if s != "" && s != "." && s != "!" && s != "?" {
				sentences = append(sentences, s)
			}
			builder.Reset()
		}
	}
	if s := strings.TrimSpace(builder.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]")
		if len(f) > 2 {
			set[f] = true
		}
	}
	return set
}
