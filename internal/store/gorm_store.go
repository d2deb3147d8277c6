package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/models"
	"gorm.io/gorm"
)

// GormStore 基于gorm的文档存储实现
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建gorm文档存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *GormStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *GormStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	if err := s.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateDocumentStatus(ctx context.Context, documentID string, status models.ProcessingStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"update_time":   time.Now(),
	}
	if status == models.StatusCompleted {
		updates["processed_at"] = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update document status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

func (s *GormStore) DeleteDocument(ctx context.Context, documentID string) error {
	res := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.Document{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

func (s *GormStore) ListDocumentsByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("create_time ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *GormStore) CreateChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(chunks, 200).Error; err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

func (s *GormStore) GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.db.WithContext(ctx).Where("chunk_id = ?", chunkID).First(&chunk).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("chunk")
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &chunk, nil
}

func (s *GormStore) ChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

func (s *GormStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.Chunk{}).Error; err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
