// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zhiwen-go/internal/config"
	"zhiwen-go/pkg/log"
	"zhiwen-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	kafkago "github.com/segmentio/kafka-go"
)

// TaskHandler 处理一条文档处理任务，由消费者在收到消息后同步调用。
// 返回非 nil 错误表示这次投递失败，消息不提交，交给重试计数决定去留。
type TaskHandler func(ctx context.Context, task tasks.DocumentProcessingTask) error

// Producer 持有任务主题与事件主题的两个写入器。
type Producer struct {
	taskWriter  *kafkago.Writer
	eventWriter *kafkago.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		taskWriter: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers),
			Topic:    cfg.TaskTopic,
			Balancer: &kafkago.LeastBytes{},
		},
		eventWriter: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers),
			Topic:    cfg.EventTopic,
			Balancer: &kafkago.LeastBytes{},
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// ProduceDocumentTask 发送一个文档处理任务到 Kafka。
// 以 DocumentID 作为消息 Key，保证同一文档的任务落在同一分区内有序。
func (p *Producer) ProduceDocumentTask(ctx context.Context, task tasks.DocumentProcessingTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return p.taskWriter.WriteMessages(ctx,
		kafkago.Message{
			Key:   []byte(task.DocumentID),
			Value: taskBytes,
		},
	)
}

// PublishDocumentEvent 将文档状态变更事件发布到事件主题。
func (p *Producer) PublishDocumentEvent(ctx context.Context, event tasks.DocumentEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.eventWriter.WriteMessages(ctx,
		kafkago.Message{
			Key:   []byte(event.DocumentID),
			Value: eventBytes,
		},
	)
}

// Close 关闭生产者的全部写入器。
func (p *Producer) Close() error {
	return errors.Join(p.taskWriter.Close(), p.eventWriter.Close())
}

// Consumer 消费文档处理任务并交给 TaskHandler 同步执行。
type Consumer struct {
	reader  *kafkago.Reader
	rdb     *redis.Client
	handler TaskHandler
	// onGiveUp 在任务连续失败达到阈值、放弃重试时回调，由上层决定如何标记文档。
	onGiveUp func(ctx context.Context, task tasks.DocumentProcessingTask, cause error)
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, handler TaskHandler,
	onGiveUp func(ctx context.Context, task tasks.DocumentProcessingTask, cause error)) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.TaskTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, rdb: rdb, handler: handler, onGiveUp: onGiveUp}
}

// Run 循环消费任务直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) {
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者收到停止信号，退出消费循环")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.DocumentProcessingTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理文档任务: DocumentID=%s, Force=%v", task.DocumentID, task.Force)
		// 同步处理任务
		if err := c.handler(ctx, task); err != nil {
			log.Errorf("处理文档任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("doc:attempt:%s", task.DocumentID)
			attempts, incErr := c.rdb.Incr(ctx, attemptsKey).Result()
			if incErr == nil {
				_ = c.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("文档任务多次失败(>=3)，提交 offset 终止重试: DocumentID=%s", task.DocumentID)
				if c.onGiveUp != nil {
					c.onGiveUp(ctx, task, err)
				}
				if err := c.reader.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("文档任务处理成功: DocumentID=%s", task.DocumentID)
			// 清理失败计数
			_ = c.rdb.Del(ctx, fmt.Sprintf("doc:attempt:%s", task.DocumentID)).Err()
			// 任务处理成功后，手动提交 offset
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := c.reader.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// Close 关闭底层 Reader，使 Run 中阻塞的 FetchMessage 返回。
func (c *Consumer) Close() error {
	return c.reader.Close()
}
