package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/embedding"
	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/generation"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/retrieval"
	"github.com/docuchat/backend-go/internal/store"
	"github.com/docuchat/backend-go/internal/vectorindex"
)

var validate = validator.New()

// NoContextAnswer 检索不到相关内容时的固定回答
const NoContextAnswer = "I don't have any relevant information to answer your question. Please upload relevant documents first."

const systemPrompt = `You are an intelligent Q&A assistant. Your task is to answer questions based ONLY on the provided context from uploaded documents.

Rules:
1. Answer questions using ONLY information from the provided context
2. If the answer is not in the context, say "I don't have enough information to answer that question based on the uploaded documents."
3. Be concise and accurate
4. When referencing audio/video content, mention the timestamp
5. Cite which document the information comes from
6. If multiple documents contain relevant information, synthesize the answer

Context will be provided with each question.`

const sourcePreviewChars = 200

// simulatedStreamDelay 模拟流式输出的逐词间隔
const simulatedStreamDelay = 50 * time.Millisecond

// RAGChatService 检索增强问答服务
type RAGChatService struct {
	embedder  embedding.Embedder
	index     *vectorindex.FlatIndex
	retriever *retrieval.Retriever
	generator generation.Generator
	docStore  store.DocumentStore
	cache     *store.ChunkCache
	cfg       config.ChatConfig

	streamDelay time.Duration
	log         *zap.Logger
}

// NewRAGChatService 创建问答服务
func NewRAGChatService(
	embedder embedding.Embedder,
	index *vectorindex.FlatIndex,
	retriever *retrieval.Retriever,
	generator generation.Generator,
	docStore store.DocumentStore,
	cache *store.ChunkCache,
	cfg config.ChatConfig,
) *RAGChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 5
	}
	if cfg.SummaryMaxWords <= 0 {
		cfg.SummaryMaxWords = 500
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = 10000
	}
	return &RAGChatService{
		embedder:    embedder,
		index:       index,
		retriever:   retriever,
		generator:   generator,
		docStore:    docStore,
		cache:       cache,
		cfg:         cfg,
		streamDelay: simulatedStreamDelay,
		log:         logger.Named("rag_chat"),
	}
}

// Chat 处理一次完整问答
func (s *RAGChatService) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	s.log.Info("processing chat request", zap.String("question", truncate(req.Question, 50)))

	resolved, err := s.retrieve(ctx, req.Question, req.DocumentIDs, req.UserID)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(resolved) == 0 {
		metrics.ChatRequests.WithLabelValues("no_context").Inc()
		return &models.ChatResponse{
			Answer:    NoContextAnswer,
			Sources:   []models.SourceReference{},
			Timestamp: time.Now(),
		}, nil
	}

	messages := s.buildMessages(req.Question, s.buildContext(resolved), req.History)
	answer, err := s.generator.Complete(ctx, messages)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	sources := s.buildSources(resolved)
	metrics.ChatRequests.WithLabelValues("answered").Inc()
	s.log.Info("chat response generated", zap.Int("sources", len(sources)))

	return &models.ChatResponse{
		Answer:    answer,
		Sources:   sources,
		Timestamp: time.Now(),
	}, nil
}

// ChatStream 流式问答，返回的通道总是以done或error事件收尾后关闭
func (s *RAGChatService) ChatStream(ctx context.Context, req *models.ChatRequest) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 16)

	go func() {
		defer close(events)

		if err := validate.Struct(req); err != nil {
			metrics.ChatRequests.WithLabelValues("error").Inc()
			events <- models.StreamEvent{Error: err.Error()}
			return
		}

		s.log.Info("processing streaming chat request", zap.String("question", truncate(req.Question, 50)))

		resolved, err := s.retrieve(ctx, req.Question, req.DocumentIDs, req.UserID)
		if err != nil {
			metrics.ChatRequests.WithLabelValues("error").Inc()
			events <- models.StreamEvent{Error: err.Error()}
			return
		}

		if len(resolved) == 0 {
			metrics.ChatRequests.WithLabelValues("no_context").Inc()
			events <- models.StreamEvent{Content: NoContextAnswer}
			events <- models.StreamEvent{Done: true}
			return
		}

		messages := s.buildMessages(req.Question, s.buildContext(resolved), req.History)

		if s.generator.Streaming() {
			err = s.generator.Stream(ctx, messages, func(delta string) error {
				select {
				case events <- models.StreamEvent{Content: delta}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				metrics.ChatRequests.WithLabelValues("error").Inc()
				events <- models.StreamEvent{Error: err.Error()}
				return
			}
		} else {
			// 后端只支持整段补全，逐词模拟流式输出
			answer, err := s.generator.Complete(ctx, messages)
			if err != nil {
				metrics.ChatRequests.WithLabelValues("error").Inc()
				events <- models.StreamEvent{Error: err.Error()}
				return
			}
			words := strings.Fields(answer)
			for i, word := range words {
				content := word
				if i < len(words)-1 {
					content += " "
				}
				select {
				case events <- models.StreamEvent{Content: content}:
				case <-ctx.Done():
					events <- models.StreamEvent{Error: ctx.Err().Error()}
					return
				}
				select {
				case <-time.After(s.streamDelay):
				case <-ctx.Done():
					events <- models.StreamEvent{Error: ctx.Err().Error()}
					return
				}
			}
		}

		metrics.ChatRequests.WithLabelValues("answered").Inc()
		events <- models.StreamEvent{Done: true}
	}()

	return events
}

// SemanticSearch 语义检索，返回带来源信息的匹配分块
func (s *RAGChatService) SemanticSearch(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	// 单文档约束直接下推到索引过滤，多文档交给解析阶段
	var filter *vectorindex.Filter
	if len(req.DocumentIDs) == 1 {
		filter = &vectorindex.Filter{DocumentID: req.DocumentIDs[0]}
	}

	hits, err := s.index.Search(queryVector, topK, filter)
	if err != nil {
		return nil, err
	}

	resolved, err := s.retriever.Resolve(ctx, hits, retrieval.Constraints{
		DocumentIDs: req.DocumentIDs,
		UserID:      req.UserID,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resolved))
	for _, r := range resolved {
		ranges, _ := r.Chunk.GetTimeRanges()
		results = append(results, models.SearchResult{
			DocumentID:   r.Document.DocumentID,
			DocumentName: r.Document.FileName,
			ChunkText:    truncate(r.Chunk.Text, sourcePreviewChars),
			Score:        float64(r.Score),
			PageNumber:   r.Chunk.PageNumber,
			TimeRanges:   ranges,
		})
	}

	return &models.SearchResponse{
		Results:      results,
		Query:        req.Query,
		TotalResults: len(results),
	}, nil
}

// SummarizeDocument 生成文档摘要并缓存到文档记录，重复请求直接返回已有摘要
func (s *RAGChatService) SummarizeDocument(ctx context.Context, documentID string) (*models.SummaryResponse, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Summary != "" {
		return &models.SummaryResponse{
			DocumentID:  documentID,
			Summary:     doc.Summary,
			WordCount:   len(strings.Fields(doc.Summary)),
			GeneratedAt: doc.UpdateTime,
		}, nil
	}

	content := doc.Content()
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("no content available to summarize")
	}
	if len(content) > s.cfg.SummaryMaxChars {
		content = content[:s.cfg.SummaryMaxChars] + "..."
	}

	prompt := fmt.Sprintf(`Summarize the following document in approximately %d words. Focus on the main points and key information.

Document: %s

Content:
%s

Summary:`, s.cfg.SummaryMaxWords, doc.FileName, content)

	summary, err := s.generator.Complete(ctx, []generation.Message{
		{Role: generation.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	doc.Summary = summary
	if err := s.docStore.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	if s.cache.Enabled() {
		s.cache.PutDocument(ctx, doc)
	}

	s.log.Info("generated document summary", zap.String("document_id", documentID))

	return &models.SummaryResponse{
		DocumentID:  documentID,
		Summary:     summary,
		WordCount:   len(strings.Fields(summary)),
		GeneratedAt: time.Now(),
	}, nil
}

// IndexStats 暴露向量索引统计信息
func (s *RAGChatService) IndexStats() vectorindex.Stats {
	return s.index.Stats()
}

func (s *RAGChatService) retrieve(ctx context.Context, question string, documentIDs []string, userID string) ([]retrieval.ResolvedHit, error) {
	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(queryVector, s.cfg.TopK, nil)
	if err != nil {
		return nil, err
	}

	return s.retriever.Resolve(ctx, hits, retrieval.Constraints{
		DocumentIDs: documentIDs,
		UserID:      userID,
	})
}

// buildContext 每个分块一个来源块，标注序号、文档名和出处
func (s *RAGChatService) buildContext(resolved []retrieval.ResolvedHit) string {
	parts := make([]string, 0, len(resolved))
	for i, r := range resolved {
		var b strings.Builder
		fmt.Fprintf(&b, "[Source %d: %s", i+1, r.Document.FileName)

		if r.Chunk.PageNumber != nil {
			fmt.Fprintf(&b, ", Page %d", *r.Chunk.PageNumber)
		}
		if ranges, err := r.Chunk.GetTimeRanges(); err == nil && len(ranges) > 0 {
			fmt.Fprintf(&b, ", Timestamp: %s", formatTimestamp(ranges[0].Start))
		}

		b.WriteString("]\n")
		b.WriteString(r.Chunk.Text)
		b.WriteString("\n")
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

func (s *RAGChatService) buildMessages(question, context string, history []models.ConversationTurn) []generation.Message {
	messages := []generation.Message{
		{Role: generation.RoleSystem, Content: systemPrompt},
	}

	if len(history) > s.cfg.HistoryTurns {
		history = history[len(history)-s.cfg.HistoryTurns:]
	}
	for _, turn := range history {
		switch turn.Role {
		case "user":
			messages = append(messages, generation.Message{Role: generation.RoleUser, Content: turn.Content})
		case "assistant":
			messages = append(messages, generation.Message{Role: generation.RoleAssistant, Content: turn.Content})
		}
	}

	userMessage := fmt.Sprintf(`Context from uploaded documents:
%s

Question: %s

Answer based only on the context above:`, context, question)

	messages = append(messages, generation.Message{Role: generation.RoleUser, Content: userMessage})
	return messages
}

func (s *RAGChatService) buildSources(resolved []retrieval.ResolvedHit) []models.SourceReference {
	sources := make([]models.SourceReference, 0, len(resolved))
	for _, r := range resolved {
		ranges, _ := r.Chunk.GetTimeRanges()
		sources = append(sources, models.SourceReference{
			DocumentID:     r.Document.DocumentID,
			DocumentName:   r.Document.FileName,
			ChunkText:      truncate(r.Chunk.Text, sourcePreviewChars),
			PageNumber:     r.Chunk.PageNumber,
			TimeRanges:     ranges,
			RelevanceScore: float64(r.Score),
		})
	}
	return sources
}

// formatTimestamp 秒数格式化为MM:SS，超过一小时为HH:MM:SS
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
