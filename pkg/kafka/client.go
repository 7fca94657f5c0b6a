// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const attemptsTTL = 24 * time.Hour

// TaskProcessor 处理一个入库任务，把消费者与具体的处理流程解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 发布入库任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

// Publish 发送一个入库任务，返回任务 ID。
func (p *Producer) Publish(ctx context.Context, task tasks.IngestTask) (string, error) {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: task.Key(), Value: taskBytes}); err != nil {
		return "", fmt.Errorf("publish ingest task: %w", err)
	}
	log.Infof("入库任务已发送: task=%s, document=%d", task.TaskID, task.DocumentID)
	return task.TaskID, nil
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是 Consumer 使用的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费入库任务。处理成功后手动提交 offset；失败时在 Redis 中累计次数，
// 达到 maxAttempts 后提交 offset 放弃该任务。
type Consumer struct {
	reader      messageReader
	rdb         *redis.Client
	processor   TaskProcessor
	maxAttempts int64
}

// NewConsumer 创建消费者。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, rdb, processor, cfg.MaxAttempts)
}

func newConsumer(r messageReader, rdb *redis.Client, processor TaskProcessor, maxAttempts int64) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{reader: r, rdb: rdb, processor: processor, maxAttempts: maxAttempts}
}

func attemptsKey(documentID uint) string {
	return fmt.Sprintf("kafka:attempts:%d", documentID)
}

// Run 持续消费直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}
		if c.handle(ctx, m) {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handle 处理一条消息，返回是否应提交 offset。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var task tasks.IngestTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return true
	}

	key := attemptsKey(task.DocumentID)
	err := c.processor.Process(ctx, task)
	if err == nil {
		log.Infof("入库任务处理成功: task=%s, document=%d", task.TaskID, task.DocumentID)
		_ = c.rdb.Del(ctx, key).Err()
		return true
	}
	log.Errorf("入库任务处理失败: task=%s, document=%d, error: %v", task.TaskID, task.DocumentID, err)
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}

	attempts, incErr := c.rdb.Incr(ctx, key).Result()
	if incErr != nil {
		// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
		log.Warnf("记录失败次数失败: %v", incErr)
		return false
	}
	_ = c.rdb.Expire(ctx, key, attemptsTTL).Err()
	if attempts >= c.maxAttempts {
		log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: document=%d", c.maxAttempts, task.DocumentID)
		_ = c.rdb.Del(ctx, key).Err()
		return true
	}
	return false
}
