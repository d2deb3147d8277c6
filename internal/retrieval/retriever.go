package retrieval

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/store"
	"github.com/docuchat/backend-go/internal/vectorindex"
)

// ResolvedHit 检索命中解析出的完整记录
type ResolvedHit struct {
	Chunk    *models.Chunk
	Document *models.Document
	Score    float32
}

// Constraints 解析前的准入过滤条件
type Constraints struct {
	DocumentIDs []string // 非空时仅允许这些文档
	UserID      string   // 非空时仅允许该用户的文档
}

// Retriever 将向量索引命中解析为数据库里的块和文档记录
// 索引可能领先于文档库（重建期间删除、延迟同步），缺失记录按过期命中静默跳过
type Retriever struct {
	store store.DocumentStore
	cache *store.ChunkCache
	log   *zap.Logger
}

// NewRetriever 创建检索解析器
func NewRetriever(docStore store.DocumentStore, cache *store.ChunkCache) *Retriever {
	return &Retriever{
		store: docStore,
		cache: cache,
		log:   logger.Named("retrieval"),
	}
}

// Resolve 逐条解析命中，先做廉价的元数据过滤再访问文档库
func (r *Retriever) Resolve(ctx context.Context, hits []vectorindex.SearchHit, constraints Constraints) ([]ResolvedHit, error) {
	allowed := make(map[string]bool, len(constraints.DocumentIDs))
	for _, id := range constraints.DocumentIDs {
		allowed[id] = true
	}

	var resolved []ResolvedHit
	for _, hit := range hits {
		if len(allowed) > 0 && !allowed[hit.Metadata.DocumentID] {
			continue
		}
		if constraints.UserID != "" && hit.Metadata.UserID != "" && hit.Metadata.UserID != constraints.UserID {
			continue
		}

		chunk, err := r.lookupChunk(ctx, hit.Metadata.ChunkID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				metrics.StaleHits.Inc()
				r.log.Debug("skipping stale hit, chunk missing",
					zap.String("chunk_id", hit.Metadata.ChunkID))
				continue
			}
			return nil, err
		}

		doc, err := r.lookupDocument(ctx, chunk.DocumentID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				metrics.StaleHits.Inc()
				r.log.Debug("skipping stale hit, document missing",
					zap.String("document_id", chunk.DocumentID))
				continue
			}
			return nil, err
		}
		if constraints.UserID != "" && doc.UserID != constraints.UserID {
			continue
		}

		resolved = append(resolved, ResolvedHit{
			Chunk:    chunk,
			Document: doc,
			Score:    hit.Score,
		})
	}
	return resolved, nil
}

func (r *Retriever) lookupChunk(ctx context.Context, chunkID string) (*models.Chunk, error) {
	if r.cache.Enabled() {
		if chunk := r.cache.GetChunk(ctx, chunkID); chunk != nil {
			return chunk, nil
		}
	}
	chunk, err := r.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if r.cache.Enabled() {
		r.cache.PutChunk(ctx, chunk)
	}
	return chunk, nil
}

func (r *Retriever) lookupDocument(ctx context.Context, documentID string) (*models.Document, error) {
	if r.cache.Enabled() {
		if doc := r.cache.GetDocument(ctx, documentID); doc != nil {
			return doc, nil
		}
	}
	doc, err := r.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if r.cache.Enabled() {
		r.cache.PutDocument(ctx, doc)
	}
	return doc, nil
}
