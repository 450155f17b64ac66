// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"mindscribe-go/internal/config"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/tasks"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.AnalysisTask) error
}

// Producer 负责向 Kafka 发送分析任务。
type Producer struct {
	writer *kafka.Writer
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

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers(cfg)...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// PublishAnalysisTask 发送一个分析任务到 Kafka，以日记 id 作为消息 key。
func (p *Producer) PublishAnalysisTask(ctx context.Context, task tasks.AnalysisTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.EntryID),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func attemptsKey(entryID string) string {
	return fmt.Sprintf("kafka:attempts:%s", entryID)
}

// recordFailure 记录一次失败并返回是否应提交 offset 终止重试。
// Redis 异常时保守处理：不提交 offset。
func recordFailure(ctx context.Context, rdb *redis.Client, entryID string, maxAttempts int) bool {
	if rdb == nil {
		return false
	}
	key := attemptsKey(entryID)
	attempts, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false
	}
	_ = rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts >= int64(maxAttempts)
}

func clearFailures(ctx context.Context, rdb *redis.Client, entryID string) {
	if rdb == nil {
		return
	}
	_ = rdb.Del(ctx, attemptsKey(entryID)).Err()
}

// StartConsumer 启动一个 Kafka 消费者来处理分析任务，ctx 结束时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败，稍后重试", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var task tasks.AnalysisTask
		if err := json.Unmarshal(m.Value, &task); err != nil || task.EntryID == "" {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理分析任务: EntryID=%s, offset=%d", task.EntryID, m.Offset)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理分析任务失败: EntryID=%s, Error: %v", task.EntryID, err)
			if recordFailure(ctx, rdb, task.EntryID, maxAttempts) {
				log.Errorf("分析任务多次失败(>=%d)，提交 offset 终止重试: EntryID=%s", maxAttempts, task.EntryID)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			continue
		}

		log.Infof("分析任务处理成功: EntryID=%s", task.EntryID)
		clearFailures(ctx, rdb, task.EntryID)
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
