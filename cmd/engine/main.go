package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/docuchat/backend-go/internal/chunking"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/database"
	"github.com/docuchat/backend-go/internal/embedding"
	"github.com/docuchat/backend-go/internal/generation"
	"github.com/docuchat/backend-go/internal/kafka"
	"github.com/docuchat/backend-go/internal/logger"
	"github.com/docuchat/backend-go/internal/retrieval"
	"github.com/docuchat/backend-go/internal/services"
	"github.com/docuchat/backend-go/internal/storage"
	"github.com/docuchat/backend-go/internal/store"
	"github.com/docuchat/backend-go/internal/vectorindex"
)

func main() {
	// .env不存在时忽略，环境变量照常生效
	_ = godotenv.Load()

	if err := config.LoadConfig(); err != nil {
		panic("failed to load config: " + err.Error())
	}
	cfg := config.GetAppConfig()

	if err := logger.InitLogger(); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	db, err := database.InitDB()
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.CloseDB()

	redisClient, err := database.InitRedis()
	if err != nil {
		logger.Warn("redis unavailable, chunk cache disabled", zap.Error(err))
	}
	defer database.CloseRedis()

	blobs, err := storage.NewBlobStore(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to init blob store", zap.Error(err))
	}
	if minioStore, ok := blobs.(*storage.MinIOStore); ok {
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			logger.Fatal("failed to ensure bucket", zap.Error(err))
		}
	}

	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		logger.Fatal("failed to init embedder", zap.Error(err))
	}

	index, err := vectorindex.NewFlatIndex(embedder.Dimensions(), cfg.Index.Path, cfg.Index.AutosaveThreshold)
	if err != nil {
		logger.Fatal("failed to init vector index", zap.Error(err))
	}

	generator, err := generation.NewGenerator(cfg.Generation)
	if err != nil {
		logger.Fatal("failed to init generator", zap.Error(err))
	}

	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("kafka unavailable, document events disabled", zap.Error(err))
		} else {
			defer kafka.GetProducer().Close()
		}
	}

	docStore := store.NewGormStore(db)
	cache := store.NewChunkCache(redisClient, time.Duration(cfg.Redis.TTL)*time.Second)
	retriever := retrieval.NewRetriever(docStore, cache)

	chatService := services.NewRAGChatService(embedder, index, retriever, generator, docStore, cache, cfg.Chat)
	processor := services.NewDocumentProcessor(
		docStore, blobs,
		chunking.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		embedder, index, cache,
		nil, // 转写服务由部署方按需注入
		cfg.Ingestion,
	)

	logger.Info("ingestion and retrieval engine started",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.Int("index_vectors", chatService.IndexStats().TotalVectors),
		zap.Int("index_dimension", chatService.IndexStats().Dimension))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 周期性摄取待处理文档
	go pendingWorker(ctx, processor)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()

	logger.Info("shutting down, saving index")
	if err := index.Save(); err != nil {
		logger.Error("failed to save index on shutdown", zap.Error(err))
	}
}

func pendingWorker(ctx context.Context, processor *services.DocumentProcessor) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := processor.ProcessPending(ctx); err != nil {
				logger.Error("pending document processing failed", zap.Error(err))
			}
		}
	}
}
