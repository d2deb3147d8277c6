package models

import "time"

// ConversationTurn 单条对话消息（仅随请求提供，不持久化）
type ConversationTurn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest 对话请求
type ChatRequest struct {
	Question    string             `json:"question" validate:"required,min=1,max=2000"`
	DocumentIDs []string           `json:"document_ids,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	History     []ConversationTurn `json:"conversation_history,omitempty" validate:"dive"`
	Stream      bool               `json:"stream"`
}

// SourceReference 答案引用的来源
type SourceReference struct {
	DocumentID     string      `json:"document_id"`
	DocumentName   string      `json:"document_name"`
	ChunkText      string      `json:"chunk_text"`
	PageNumber     *int        `json:"page_number,omitempty"`
	TimeRanges     []TimeRange `json:"timestamps,omitempty"`
	RelevanceScore float64     `json:"relevance_score"`
}

// ChatResponse 对话响应
type ChatResponse struct {
	Answer    string            `json:"answer"`
	Sources   []SourceReference `json:"sources"`
	Timestamp time.Time         `json:"timestamp"`
}

// StreamEvent 流式响应事件，三种形态之一：content增量、终止done、终止error
type StreamEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SearchRequest 语义检索请求
type SearchRequest struct {
	Query       string   `json:"query" validate:"required,min=1,max=500"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	TopK        int      `json:"top_k" validate:"omitempty,min=1,max=20"`
}

// SearchResult 单条检索结果
type SearchResult struct {
	DocumentID   string      `json:"document_id"`
	DocumentName string      `json:"document_name"`
	ChunkText    string      `json:"chunk_text"`
	Score        float64     `json:"score"`
	PageNumber   *int        `json:"page_number,omitempty"`
	TimeRanges   []TimeRange `json:"timestamps,omitempty"`
}

// SearchResponse 检索结果响应
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Query        string         `json:"query"`
	TotalResults int            `json:"total_results"`
}

// SummaryResponse 摘要响应
type SummaryResponse struct {
	DocumentID  string    `json:"document_id"`
	Summary     string    `json:"summary"`
	WordCount   int       `json:"word_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
