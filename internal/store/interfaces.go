package store

import (
	"context"

	"github.com/docuchat/backend-go/internal/models"
)

// DocumentStore 文档与分块的持久化抽象
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	UpdateDocumentStatus(ctx context.Context, documentID string, status models.ProcessingStatus, errorMessage string) error
	DeleteDocument(ctx context.Context, documentID string) error
	ListDocumentsByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error)

	CreateChunks(ctx context.Context, chunks []models.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}
