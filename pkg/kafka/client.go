// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"rfx-assist-go/internal/config"
	"rfx-assist-go/pkg/events"
	"rfx-assist-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Producer 定义了问答事件的发布接口。
// 事件发布是尽力而为的：失败只记录日志，不影响问答流程。
type Producer interface {
	PublishQueryCompleted(event events.QueryCompleted)
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &kafkaProducer{writer: writer}
}

// PublishQueryCompleted 发送一条问答完成事件到 Kafka。
func (p *kafkaProducer) PublishQueryCompleted(event events.QueryCompleted) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化问答事件失败: %v", err)
		return
	}

	err = p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.ConversationID),
			Value: eventBytes,
		},
	)
	if err != nil {
		log.Errorf("发送问答事件到 Kafka 失败: %v", err)
	}
}
