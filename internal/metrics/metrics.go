package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎级Prometheus指标
var (
	// IngestedChunks 已入库的分块总数
	IngestedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_ingested_chunks_total",
		Help: "Number of chunks segmented, embedded and indexed",
	})

	// IngestFailures 摄取失败次数，按阶段区分
	IngestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_ingest_failures_total",
		Help: "Number of document ingestion failures by pipeline stage",
	}, []string{"stage"}) // stages: extract, segment, embed, store, index

	// IndexRebuilds 索引重建次数（delete-by-document触发）
	IndexRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_index_rebuilds_total",
		Help: "Number of full index rebuilds triggered by document deletion",
	})

	// IndexCorruptionRecoveries 持久化索引损坏后重新初始化的次数。
	// 冷启动（文件不存在）不计入，数据丢失事件才计入。
	IndexCorruptionRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_index_corruption_recoveries_total",
		Help: "Number of times a persisted index was unreadable and reinitialized empty",
	})

	// ChatRequests 对话请求次数，按结果区分
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_chat_requests_total",
		Help: "Number of RAG chat requests by outcome",
	}, []string{"outcome"}) // outcomes: answered, no_context, error

	// StaleHits 检索阶段跳过的过期索引命中数
	StaleHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_stale_hits_total",
		Help: "Number of index hits skipped because the backing chunk or document is gone",
	})
)
