package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChunkCache Redis分块读穿缓存。未启用时所有操作静默降级为直连存储。
type ChunkCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   int64
	misses int64
}

// NewChunkCache 创建分块缓存，client为nil时缓存不生效
func NewChunkCache(client *redis.Client, ttl time.Duration) *ChunkCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ChunkCache{client: client, ttl: ttl}
}

// Enabled 缓存是否可用
func (c *ChunkCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *ChunkCache) chunkKey(chunkID string) string {
	return fmt.Sprintf("chunk:%s", chunkID)
}

func (c *ChunkCache) docKey(documentID string) string {
	return fmt.Sprintf("doc:%s", documentID)
}

// GetChunk 从缓存读取分块，未命中返回nil
func (c *ChunkCache) GetChunk(ctx context.Context, chunkID string) *models.Chunk {
	if !c.Enabled() {
		return nil
	}
	data, err := c.client.Get(ctx, c.chunkKey(chunkID)).Bytes()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil
	}
	var chunk models.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil
	}
	atomic.AddInt64(&c.hits, 1)
	return &chunk
}

// PutChunk 写入分块缓存，失败仅记录日志
func (c *ChunkCache) PutChunk(ctx context.Context, chunk *models.Chunk) {
	if !c.Enabled() || chunk == nil {
		return
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.chunkKey(chunk.ChunkID), data, c.ttl).Err(); err != nil {
		logger.Warn("chunk cache write failed",
			zap.String("chunk_id", chunk.ChunkID),
			zap.Error(err))
	}
}

// GetDocument 从缓存读取文档，未命中返回nil
func (c *ChunkCache) GetDocument(ctx context.Context, documentID string) *models.Document {
	if !c.Enabled() {
		return nil
	}
	data, err := c.client.Get(ctx, c.docKey(documentID)).Bytes()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil
	}
	atomic.AddInt64(&c.hits, 1)
	return &doc
}

// PutDocument 写入文档缓存
func (c *ChunkCache) PutDocument(ctx context.Context, doc *models.Document) {
	if !c.Enabled() || doc == nil {
		return
	}
	// 正文可能很大，缓存时去掉
	slim := *doc
	slim.ExtractedText = ""
	slim.Transcription = ""
	data, err := json.Marshal(&slim)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.docKey(doc.DocumentID), data, c.ttl).Err(); err != nil {
		logger.Warn("document cache write failed",
			zap.String("document_id", doc.DocumentID),
			zap.Error(err))
	}
}

// InvalidateDocument 删除文档及其分块的缓存条目
func (c *ChunkCache) InvalidateDocument(ctx context.Context, documentID string, chunkIDs []string) {
	if !c.Enabled() {
		return
	}
	keys := make([]string, 0, len(chunkIDs)+1)
	keys = append(keys, c.docKey(documentID))
	for _, id := range chunkIDs {
		keys = append(keys, c.chunkKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("cache invalidation failed",
			zap.String("document_id", documentID),
			zap.Error(err))
	}
}

// Stats 返回命中与未命中计数
func (c *ChunkCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
