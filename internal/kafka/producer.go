package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/docuchat/backend-go/internal/logger"
)

// 文档生命周期事件类型
const (
	EventDocumentProcessed = "document.processed"
	EventDocumentFailed    = "document.failed"
	EventDocumentDeleted   = "document.deleted"
)

// DocumentEvent 文档生命周期事件
type DocumentEvent struct {
	EventType    string    `json:"event_type"`
	DocumentID   string    `json:"document_id"`
	UserID       string    `json:"user_id,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	FileType     string    `json:"file_type,omitempty"`
	ChunkCount   int       `json:"chunk_count,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendEvent 发送文档事件到Kafka
func (p *Producer) SendEvent(event *DocumentEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.DocumentID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.EventType),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send kafka event", zap.Error(err))
		return fmt.Errorf("failed to send event: %w", err)
	}

	logger.Debug("kafka event sent",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("event_type", event.EventType),
		zap.String("document_id", event.DocumentID))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublishDocumentEvent 发送文档事件（便捷方法）
// Kafka未配置时静默跳过，不影响主流程
func PublishDocumentEvent(eventType string, event DocumentEvent) error {
	producer := GetProducer()
	if producer == nil {
		return nil
	}

	event.EventType = eventType
	event.Timestamp = time.Now()
	return producer.SendEvent(&event)
}
