package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cex-matching/conf"

	"github.com/segmentio/kafka-go"
)

// 撮合服务必须配置的逻辑 topic，缺失在启动期直接暴露
var requiredTopics = []string{"orders", "trades"}

var writers sync.Map // map[string]*kafka.Writer

// GetWriter 获取指定 topic 的 kafka.Writer，自动复用
// 消息以 symbol 作 key，Hash 均衡器保证同一交易对落同一分区，分区内保序
func GetWriter(topic string) *kafka.Writer {
	val, ok := writers.Load(topic)
	if ok {
		return val.(*kafka.Writer)
	}
	brokers := conf.GetConf().Kafka.Brokers
	if len(brokers) == 0 {
		panic("Kafka brokers not configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
	writers.Store(topic, writer)
	return writer
}

// validateTopics 校验逻辑 topic 映射是否齐全
func validateTopics(topics map[string]string) error {
	for _, name := range requiredTopics {
		if topics[name] == "" {
			return fmt.Errorf("kafka topic %q not configured", name)
		}
	}
	return nil
}

// InitWriters 预初始化所有 topics 的 writer（自动从配置获取）
func InitWriters() {
	for _, topic := range conf.GetConf().Kafka.Topics {
		GetWriter(topic)
	}
}

// TestKafkaConnection 测试 Kafka 连接
func TestKafkaConnection() {
	brokers := conf.GetConf().Kafka.Brokers
	if len(brokers) == 0 {
		panic("Kafka brokers not configured")
	}
	conn, err := kafka.DialContext(context.Background(), "tcp", brokers[0])
	if err != nil {
		panic(fmt.Sprintf("failed to connect to kafka: %v", err))
	}
	_ = conn.Close()
}

// CloseAllWriters 关闭所有 writer
func CloseAllWriters() {
	writers.Range(func(key, value interface{}) bool {
		if w, ok := value.(*kafka.Writer); ok {
			_ = w.Close()
		}
		return true
	})
}

// Init 初始化 Kafka：校验 topic 配置、连接测试、writer 预初始化
func Init() {
	if err := validateTopics(conf.GetConf().Kafka.Topics); err != nil {
		panic(err)
	}
	TestKafkaConnection()
	InitWriters()
}
