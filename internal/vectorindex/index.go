package vectorindex

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/metrics"
)

const (
	vectorsFile  = "index.gob"
	metadataFile = "metadata.gob"
)

// Metadata 向量在索引中的位置对齐元数据
type Metadata struct {
	ChunkID    string
	DocumentID string
	UserID     string
	ChunkIndex int
	PageNumber *int
	SourceType string
}

// Filter 检索过滤条件，零值字段不参与匹配
type Filter struct {
	DocumentID string
	UserID     string
}

func (f *Filter) matches(m Metadata) bool {
	if f == nil {
		return true
	}
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	if f.UserID != "" && m.UserID != f.UserID {
		return false
	}
	return true
}

// SearchHit 单条检索结果
type SearchHit struct {
	Metadata Metadata
	Score    float32
}

// Stats 索引统计信息
type Stats struct {
	TotalVectors int    `json:"total_vectors"`
	Dimension    int    `json:"dimension"`
	StoragePath  string `json:"storage_path"`
}

// indexSnapshot 向量文件的持久化结构
type indexSnapshot struct {
	Dimension int
	Vectors   [][]float32
}

// FlatIndex 内积相似度的平铺向量索引
// 向量插入前做L2归一化，内积即余弦相似度；删除通过整体重建实现
type FlatIndex struct {
	mu                sync.RWMutex
	dimension         int
	vectors           [][]float32
	metadata          []Metadata
	path              string
	autosaveThreshold int
	sinceSave         int
	log               *zap.Logger
}

// NewFlatIndex 创建或加载向量索引
// 持久化文件存在且可读则加载，损坏时重建空索引而不是失败
func NewFlatIndex(dimension int, path string, autosaveThreshold int) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, apperrors.NewValidationError("index dimension must be positive")
	}
	if autosaveThreshold <= 0 {
		autosaveThreshold = 100
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	idx := &FlatIndex{
		dimension:         dimension,
		path:              path,
		autosaveThreshold: autosaveThreshold,
		log:               logger.Named("vectorindex"),
	}
	idx.load()
	return idx, nil
}

func (idx *FlatIndex) load() {
	vPath := filepath.Join(idx.path, vectorsFile)
	mPath := filepath.Join(idx.path, metadataFile)

	if _, err := os.Stat(vPath); err != nil {
		idx.log.Info("initialized empty index", zap.Int("dimension", idx.dimension))
		return
	}
	if _, err := os.Stat(mPath); err != nil {
		idx.log.Info("initialized empty index", zap.Int("dimension", idx.dimension))
		return
	}

	snapshot, metadata, err := readSnapshot(vPath, mPath)
	if err != nil {
		idx.log.Error("failed to load index, reinitializing empty",
			zap.String("path", idx.path),
			zap.Error(err))
		metrics.IndexCorruptionRecoveries.Inc()
		return
	}
	if snapshot.Dimension != idx.dimension {
		idx.log.Warn("stored index dimension does not match configuration, reinitializing empty",
			zap.Int("stored_dimension", snapshot.Dimension),
			zap.Int("configured_dimension", idx.dimension))
		return
	}
	if len(snapshot.Vectors) != len(metadata) {
		idx.log.Error("index and metadata record counts diverge, reinitializing empty",
			zap.Int("vector_count", len(snapshot.Vectors)),
			zap.Int("metadata_count", len(metadata)))
		metrics.IndexCorruptionRecoveries.Inc()
		return
	}

	idx.vectors = snapshot.Vectors
	idx.metadata = metadata
	idx.log.Info("loaded index",
		zap.Int("total_vectors", len(idx.vectors)),
		zap.Int("dimension", idx.dimension))
}

func readSnapshot(vPath, mPath string) (*indexSnapshot, []Metadata, error) {
	vf, err := os.Open(vPath)
	if err != nil {
		return nil, nil, err
	}
	defer vf.Close()

	var snapshot indexSnapshot
	if err := gob.NewDecoder(vf).Decode(&snapshot); err != nil {
		return nil, nil, apperrors.NewIndexCorruptionError(vPath, err)
	}

	mf, err := os.Open(mPath)
	if err != nil {
		return nil, nil, err
	}
	defer mf.Close()

	var metadata []Metadata
	if err := gob.NewDecoder(mf).Decode(&metadata); err != nil {
		return nil, nil, apperrors.NewIndexCorruptionError(mPath, err)
	}
	return &snapshot, metadata, nil
}

// Add 追加向量及对齐元数据
// 任一向量维度不符则整批拒绝，索引保持不变
func (idx *FlatIndex) Add(vectors [][]float32, metadata []Metadata) error {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) != len(metadata) {
		return apperrors.NewValidationError(
			fmt.Sprintf("vector count (%d) does not match metadata count (%d)", len(vectors), len(metadata)))
	}

	// 先整体校验维度，保证失败时无部分插入
	for _, v := range vectors {
		if len(v) != idx.dimension {
			return apperrors.NewDimensionMismatchError(idx.dimension, len(v))
		}
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalized[i] = normalizeCopy(v)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors = append(idx.vectors, normalized...)
	idx.metadata = append(idx.metadata, metadata...)
	idx.sinceSave += len(normalized)

	idx.log.Debug("added vectors",
		zap.Int("count", len(normalized)),
		zap.Int("total_vectors", len(idx.vectors)))

	if idx.sinceSave >= idx.autosaveThreshold {
		if err := idx.saveLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Search 返回按相似度降序的至多topK条结果
// 提供过滤条件时先超额取3倍候选再精确匹配
func (idx *FlatIndex) Search(query []float32, topK int, filter *Filter) ([]SearchHit, error) {
	if len(query) != idx.dimension {
		return nil, apperrors.NewDimensionMismatchError(idx.dimension, len(query))
	}
	if topK <= 0 {
		topK = 5
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return nil, nil
	}

	q := normalizeCopy(query)

	candidateK := topK
	if filter != nil {
		candidateK = topK * 3
	}

	type scored struct {
		position int
		score    float32
	}
	all := make([]scored, len(idx.vectors))
	for i, v := range idx.vectors {
		all[i] = scored{position: i, score: dot(q, v)}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	if candidateK > len(all) {
		candidateK = len(all)
	}

	var hits []SearchHit
	for _, c := range all[:candidateK] {
		meta := idx.metadata[c.position]
		if !filter.matches(meta) {
			continue
		}
		hits = append(hits, SearchHit{Metadata: meta, Score: c.score})
		if len(hits) >= topK {
			break
		}
	}
	return hits, nil
}

// DeleteByDocument 删除文档的全部向量
// 底层无删除原语，通过保留其余记录重建索引实现，结束后无条件落盘
func (idx *FlatIndex) DeleteByDocument(documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	retainVectors := make([][]float32, 0, len(idx.vectors))
	retainMetadata := make([]Metadata, 0, len(idx.metadata))
	for i, meta := range idx.metadata {
		if meta.DocumentID == documentID {
			continue
		}
		retainVectors = append(retainVectors, idx.vectors[i])
		retainMetadata = append(retainMetadata, meta)
	}

	removed := len(idx.vectors) - len(retainVectors)
	if removed == 0 {
		idx.log.Info("no vectors found for document", zap.String("document_id", documentID))
		return nil
	}

	idx.vectors = retainVectors
	idx.metadata = retainMetadata
	metrics.IndexRebuilds.Inc()

	idx.log.Info("index rebuilt after document deletion",
		zap.String("document_id", documentID),
		zap.Int("removed", removed),
		zap.Int("total_vectors", len(idx.vectors)))

	return idx.saveLocked()
}

// Save 显式落盘
func (idx *FlatIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveLocked()
}

func (idx *FlatIndex) saveLocked() error {
	vPath := filepath.Join(idx.path, vectorsFile)
	mPath := filepath.Join(idx.path, metadataFile)

	vf, err := os.Create(vPath)
	if err != nil {
		return fmt.Errorf("failed to create vectors file: %w", err)
	}
	defer vf.Close()
	if err := gob.NewEncoder(vf).Encode(&indexSnapshot{
		Dimension: idx.dimension,
		Vectors:   idx.vectors,
	}); err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}

	mf, err := os.Create(mPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer mf.Close()
	if err := gob.NewEncoder(mf).Encode(idx.metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	idx.sinceSave = 0
	idx.log.Info("saved index", zap.Int("total_vectors", len(idx.vectors)))
	return nil
}

// Stats 返回索引统计信息，可并发安全调用
func (idx *FlatIndex) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		TotalVectors: len(idx.vectors),
		Dimension:    idx.dimension,
		StoragePath:  idx.path,
	}
}

func normalizeCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
