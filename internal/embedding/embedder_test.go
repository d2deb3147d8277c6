package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuchat/backend-go/internal/config"
)

func TestLocalEmbedderDimensions(t *testing.T) {
	embedder := NewLocalEmbedder(384)
	assert.Equal(t, 384, embedder.Dimensions())

	v, err := embedder.Embed(context.Background(), "hello world")
	assert.NoError(t, err)
	assert.Len(t, v, 384)
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	a, err := embedder.Embed(context.Background(), "machine learning fundamentals")
	assert.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "machine learning fundamentals")
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedderNormalized(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	v, err := embedder.Embed(context.Background(), "the quick brown fox jumps over the lazy dog")
	assert.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestLocalEmbedderDistinctTexts(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	a, err := embedder.Embed(context.Background(), "neural networks and deep learning")
	assert.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "recipe for chocolate cake")
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	v, err := embedder.Embed(context.Background(), "")
	assert.NoError(t, err)
	assert.Len(t, v, 384)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestLocalEmbedderBatchOrder(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	texts := []string{"first text", "second text", "third text"}
	vectors, err := embedder.EmbedBatch(context.Background(), texts)
	assert.NoError(t, err)
	assert.Len(t, vectors, 3)

	for i, text := range texts {
		single, err := embedder.Embed(context.Background(), text)
		assert.NoError(t, err)
		assert.Equal(t, single, vectors[i])
	}
}

func TestLocalEmbedderBatchEmpty(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	vectors, err := embedder.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestLocalEmbedderCancelledContext(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := embedder.Embed(ctx, "some text")
	assert.Error(t, err)
}

func TestLocalEmbedderSelfSimilarity(t *testing.T) {
	embedder := NewLocalEmbedder(384)

	v, err := embedder.Embed(context.Background(), "vector similarity check")
	assert.NoError(t, err)

	var dot float64
	for i := range v {
		dot += float64(v[i]) * float64(v[i])
	}
	assert.InDelta(t, 1.0, dot, 1e-4)
	assert.False(t, math.IsNaN(dot))
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "text-embedding-3-small", 100)
	assert.Error(t, err)
}

func TestNewOpenAIEmbedderModelDimensions(t *testing.T) {
	e, err := NewOpenAIEmbedder("sk-test", "text-embedding-3-small", 100)
	assert.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())

	e, err = NewOpenAIEmbedder("sk-test", "text-embedding-3-large", 100)
	assert.NoError(t, err)
	assert.Equal(t, 3072, e.Dimensions())

	// 未知模型回落到1536
	e, err = NewOpenAIEmbedder("sk-test", "custom-model", 100)
	assert.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())
}

func TestNewEmbedderProviderSwitch(t *testing.T) {
	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "local", Dimensions: 384})
	assert.NoError(t, err)
	assert.Equal(t, 384, e.Dimensions())

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "unknown"})
	assert.Error(t, err)
}
