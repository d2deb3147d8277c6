package services

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docuchat/backend-go/internal/chunking"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/embedding"
	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/kafka"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/storage"
	"github.com/docuchat/backend-go/internal/store"
	"github.com/docuchat/backend-go/internal/vectorindex"
)

// Transcriber 音视频转写外部协作方
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, fileName string) (text string, segments []models.TimeRange, duration float64, err error)
}

// DocumentProcessor 文档摄取管道：取文件 → 提取 → 分块 → 向量化 → 入库入索引
// 单个文档内部严格串行，不同文档可并行，向量化在获取索引锁之前完成
type DocumentProcessor struct {
	docStore    store.DocumentStore
	blobs       storage.BlobStore
	chunker     *chunking.Chunker
	embedder    embedding.Embedder
	index       *vectorindex.FlatIndex
	cache       *store.ChunkCache
	transcriber Transcriber
	cfg         config.IngestionConfig
	log         *zap.Logger
}

// NewDocumentProcessor 创建摄取管道，transcriber可为nil（禁用音视频摄取）
func NewDocumentProcessor(
	docStore store.DocumentStore,
	blobs storage.BlobStore,
	chunker *chunking.Chunker,
	embedder embedding.Embedder,
	index *vectorindex.FlatIndex,
	cache *store.ChunkCache,
	transcriber Transcriber,
	cfg config.IngestionConfig,
) *DocumentProcessor {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	return &DocumentProcessor{
		docStore:    docStore,
		blobs:       blobs,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		cache:       cache,
		transcriber: transcriber,
		cfg:         cfg,
		log:         logger.Named("document_processor"),
	}
}

// RegisterDocument 登记新文档：生成文档ID、保存原始文件、创建pending记录
func (p *DocumentProcessor) RegisterDocument(ctx context.Context, userID, fileName string, data []byte) (*models.Document, error) {
	if fileName == "" {
		return nil, apperrors.NewValidationError("file name is required")
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("file is empty")
	}
	fileType, err := fileTypeForName(fileName)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	filePath := fmt.Sprintf("%s/%s/%s", fileType, docID, fileName)
	mimeType := mime.TypeByExtension(filepath.Ext(fileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := p.blobs.Store(ctx, filePath, data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	doc := &models.Document{
		DocumentID: docID,
		UserID:     userID,
		FileName:   fileName,
		FileType:   fileType,
		FilePath:   filePath,
		FileSize:   int64(len(data)),
		MimeType:   mimeType,
		Status:     models.StatusPending,
	}
	if err := p.docStore.CreateDocument(ctx, doc); err != nil {
		if delErr := p.blobs.Delete(ctx, filePath); delErr != nil {
			p.log.Warn("failed to clean up stored file",
				zap.String("file_path", filePath),
				zap.Error(delErr))
		}
		return nil, err
	}

	p.log.Info("document registered",
		zap.String("document_id", docID),
		zap.String("file_name", fileName),
		zap.String("file_type", string(fileType)),
		zap.Int64("file_size", doc.FileSize))
	return doc, nil
}

// fileTypeForName 按扩展名判定文件类型，不支持的扩展名拒绝
func fileTypeForName(fileName string) (models.FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case "pdf", "docx", "txt", "md", "markdown":
		return models.FileTypeText, nil
	case "mp3", "wav", "m4a":
		return models.FileTypeAudio, nil
	case "mp4", "avi", "mov":
		return models.FileTypeVideo, nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("file type not allowed: .%s", ext))
}

// Process 处理单个文档，任何失败都把文档置为failed并记录原因
func (p *DocumentProcessor) Process(ctx context.Context, documentID string) error {
	doc, err := p.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := p.docStore.UpdateDocumentStatus(ctx, documentID, models.StatusProcessing, ""); err != nil {
		return err
	}
	doc.Status = models.StatusProcessing

	if err := p.ingest(ctx, doc); err != nil {
		p.log.Error("document processing failed",
			zap.String("document_id", documentID),
			zap.Error(err))
		if statusErr := p.docStore.UpdateDocumentStatus(ctx, documentID, models.StatusFailed, err.Error()); statusErr != nil {
			p.log.Error("failed to mark document as failed",
				zap.String("document_id", documentID),
				zap.Error(statusErr))
		}
		_ = kafka.PublishDocumentEvent(kafka.EventDocumentFailed, kafka.DocumentEvent{
			DocumentID:   documentID,
			UserID:       doc.UserID,
			FileName:     doc.FileName,
			FileType:     string(doc.FileType),
			ErrorMessage: err.Error(),
		})
		return err
	}

	if err := p.docStore.UpdateDocumentStatus(ctx, documentID, models.StatusCompleted, ""); err != nil {
		return err
	}
	if p.cache.Enabled() {
		p.cache.InvalidateDocument(ctx, documentID, nil)
	}

	_ = kafka.PublishDocumentEvent(kafka.EventDocumentProcessed, kafka.DocumentEvent{
		DocumentID: documentID,
		UserID:     doc.UserID,
		FileName:   doc.FileName,
		FileType:   string(doc.FileType),
		ChunkCount: doc.ChunkCount,
	})

	p.log.Info("document processed",
		zap.String("document_id", documentID),
		zap.Int("chunk_count", doc.ChunkCount))
	return nil
}

// ProcessPending 并行处理所有待处理文档，文档间并发度受max_parallel约束
func (p *DocumentProcessor) ProcessPending(ctx context.Context) error {
	docs, err := p.docStore.ListDocumentsByStatus(ctx, models.StatusPending)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxParallel)
	for _, doc := range docs {
		documentID := doc.DocumentID
		g.Go(func() error {
			return p.Process(gctx, documentID)
		})
	}
	return g.Wait()
}

// DeleteDocument 级联删除：原始文件、分块记录、向量索引条目、文档记录
func (p *DocumentProcessor) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := p.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	chunks, err := p.docStore.ChunksByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if doc.FilePath != "" {
		if err := p.blobs.Delete(ctx, doc.FilePath); err != nil {
			p.log.Warn("failed to delete stored file",
				zap.String("document_id", documentID),
				zap.String("file_path", doc.FilePath),
				zap.Error(err))
		}
	}

	if err := p.docStore.DeleteChunksByDocument(ctx, documentID); err != nil {
		return err
	}
	if err := p.index.DeleteByDocument(documentID); err != nil {
		return err
	}
	if err := p.docStore.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	if p.cache.Enabled() {
		chunkIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ChunkID
		}
		p.cache.InvalidateDocument(ctx, documentID, chunkIDs)
	}

	_ = kafka.PublishDocumentEvent(kafka.EventDocumentDeleted, kafka.DocumentEvent{
		DocumentID: documentID,
		UserID:     doc.UserID,
		FileName:   doc.FileName,
		FileType:   string(doc.FileType),
	})

	p.log.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

func (p *DocumentProcessor) ingest(ctx context.Context, doc *models.Document) error {
	data, err := p.blobs.Fetch(ctx, doc.FilePath)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extract").Inc()
		return fmt.Errorf("failed to fetch file: %w", err)
	}

	var pieces []chunking.Chunk
	switch doc.FileType {
	case models.FileTypeText:
		pieces, err = p.segmentText(doc, data)
	case models.FileTypeAudio, models.FileTypeVideo:
		pieces, err = p.segmentMedia(ctx, doc, data)
	default:
		metrics.IngestFailures.WithLabelValues("extract").Inc()
		return apperrors.NewValidationError(fmt.Sprintf("unsupported file type: %s", doc.FileType))
	}
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		metrics.IngestFailures.WithLabelValues("segment").Inc()
		return apperrors.NewValidationError("document produced no chunks")
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}

	// 向量化可能走慢速远端，必须在进入索引临界区之前完成
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("embed").Inc()
		return err
	}

	chunks := make([]models.Chunk, len(pieces))
	metadata := make([]vectorindex.Metadata, len(pieces))
	for i, piece := range pieces {
		chunkID := fmt.Sprintf("%s_chunk_%d", doc.DocumentID, piece.Index)

		chunk := models.Chunk{
			ChunkID:    chunkID,
			DocumentID: doc.DocumentID,
			ChunkIndex: piece.Index,
			Text:       piece.Text,
			PageNumber: piece.PageNumber,
			SourceType: doc.FileType,
		}
		if err := chunk.SetEmbedding(vectors[i]); err != nil {
			metrics.IngestFailures.WithLabelValues("store").Inc()
			return err
		}
		if err := chunk.SetTimeRanges(piece.TimeRanges); err != nil {
			metrics.IngestFailures.WithLabelValues("store").Inc()
			return err
		}
		chunks[i] = chunk

		metadata[i] = vectorindex.Metadata{
			ChunkID:    chunkID,
			DocumentID: doc.DocumentID,
			UserID:     doc.UserID,
			ChunkIndex: piece.Index,
			PageNumber: piece.PageNumber,
			SourceType: string(doc.FileType),
		}
	}

	if err := p.docStore.CreateChunks(ctx, chunks); err != nil {
		metrics.IngestFailures.WithLabelValues("store").Inc()
		return err
	}

	if err := p.index.Add(vectors, metadata); err != nil {
		metrics.IngestFailures.WithLabelValues("index").Inc()
		return err
	}

	doc.ChunkCount = len(chunks)
	if err := p.docStore.UpdateDocument(ctx, doc); err != nil {
		metrics.IngestFailures.WithLabelValues("store").Inc()
		return err
	}

	metrics.IngestedChunks.Add(float64(len(chunks)))
	return nil
}

func (p *DocumentProcessor) segmentText(doc *models.Document, data []byte) ([]chunking.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	if ext == ".pdf" {
		pages, err := chunking.PDFPages(data)
		if err != nil {
			metrics.IngestFailures.WithLabelValues("extract").Inc()
			return nil, err
		}
		doc.Pages = len(pages)

		var builder strings.Builder
		for _, page := range pages {
			builder.WriteString(page.Text)
			builder.WriteString("\n")
		}
		doc.ExtractedText = builder.String()

		return p.chunker.SplitPages(pages), nil
	}

	text, err := chunking.ExtractText(data, doc.FileName)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extract").Inc()
		return nil, err
	}
	doc.ExtractedText = text
	return p.chunker.SplitText(text), nil
}

func (p *DocumentProcessor) segmentMedia(ctx context.Context, doc *models.Document, data []byte) ([]chunking.Chunk, error) {
	if p.transcriber == nil {
		metrics.IngestFailures.WithLabelValues("extract").Inc()
		return nil, apperrors.NewBackendUnavailableError("transcription", nil)
	}

	text, segments, duration, err := p.transcriber.Transcribe(ctx, data, doc.FileName)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extract").Inc()
		return nil, apperrors.NewBackendUnavailableError("transcription", err)
	}

	doc.Transcription = text
	doc.Duration = duration

	if len(segments) > 0 {
		return p.chunker.SplitTimeline(segments), nil
	}
	return p.chunker.SplitText(text), nil
}
