package models

import (
	"encoding/json"
	"time"
)

// FileType 文件类型
type FileType string

const (
	FileTypeText  FileType = "text"
	FileTypeAudio FileType = "audio"
	FileTypeVideo FileType = "video"
)

// ProcessingStatus 文档处理状态
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document 文档记录
type Document struct {
	DocumentID    string           `gorm:"primaryKey;column:document_id;size:64" json:"document_id"`
	UserID        string           `gorm:"column:user_id;size:64;index" json:"user_id"`
	FileName      string           `gorm:"size:255;not null" json:"file_name"`
	FileType      FileType         `gorm:"size:20;not null" json:"file_type"`
	FilePath      string           `gorm:"size:500" json:"file_path"`
	FileSize      int64            `gorm:"default:0" json:"file_size"`
	MimeType      string           `gorm:"size:100" json:"mime_type"`
	Pages         int              `gorm:"default:0" json:"pages,omitempty"`
	Duration      float64          `gorm:"default:0" json:"duration,omitempty"`
	Status        ProcessingStatus `gorm:"size:20;default:pending;index" json:"status"`
	ExtractedText string           `gorm:"type:text" json:"extracted_text,omitempty"`
	Transcription string           `gorm:"type:text" json:"transcription,omitempty"`
	Summary       string           `gorm:"type:text" json:"summary,omitempty"`
	ErrorMessage  string           `gorm:"type:text" json:"error_message,omitempty"`
	ChunkCount    int              `gorm:"default:0" json:"chunk_count"`
	CreateTime    time.Time        `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime    time.Time        `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
	ProcessedAt   *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`

	// 关系
	Chunks []Chunk `gorm:"foreignKey:DocumentID" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// Content 返回文档的可用文本内容（提取文本或转写文本）
func (d *Document) Content() string {
	if d.ExtractedText != "" {
		return d.ExtractedText
	}
	return d.Transcription
}

// Page PDF单页文本
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// TimeRange 音视频时间范围
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text,omitempty"`
}

// Chunk 文档分块
type Chunk struct {
	ChunkID    string    `gorm:"primaryKey;column:chunk_id;size:128" json:"chunk_id"`
	DocumentID string    `gorm:"column:document_id;size:64;not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"not null;index" json:"chunk_index"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Embedding  string    `gorm:"type:json" json:"-"`
	PageNumber *int      `gorm:"column:page_number" json:"page_number,omitempty"`
	TimeRanges string    `gorm:"type:json;column:time_ranges" json:"-"`
	SourceType FileType  `gorm:"size:20" json:"source_type"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// SetEmbedding 序列化embedding向量到JSON列
func (c *Chunk) SetEmbedding(vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	c.Embedding = string(data)
	return nil
}

// GetEmbedding 反序列化embedding向量
func (c *Chunk) GetEmbedding() ([]float32, error) {
	if c.Embedding == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(c.Embedding), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// SetTimeRanges 序列化时间范围到JSON列
func (c *Chunk) SetTimeRanges(ranges []TimeRange) error {
	if len(ranges) == 0 {
		c.TimeRanges = ""
		return nil
	}
	data, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	c.TimeRanges = string(data)
	return nil
}

// GetTimeRanges 反序列化时间范围
func (c *Chunk) GetTimeRanges() ([]TimeRange, error) {
	if c.TimeRanges == "" {
		return nil, nil
	}
	var ranges []TimeRange
	if err := json.Unmarshal([]byte(c.TimeRanges), &ranges); err != nil {
		return nil, err
	}
	return ranges, nil
}

// HasTimeRanges 是否带有时间范围来源信息
func (c *Chunk) HasTimeRanges() bool {
	return c.TimeRanges != "" && c.TimeRanges != "null"
}
