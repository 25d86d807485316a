package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cex-matching/conf"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

// OrderKafkaConsumer 从Kafka拉取下单请求送入撮合引擎
// 单Reader顺序消费，保证同一分区内订单到达顺序即撮合顺序
type OrderKafkaConsumer struct {
	orders  *OrderService
	topic   string
	closeCh chan struct{}
}

func NewOrderKafkaConsumer(orders *OrderService, topic string) *OrderKafkaConsumer {
	return &OrderKafkaConsumer{
		orders:  orders,
		topic:   topic,
		closeCh: make(chan struct{}),
	}
}

func (c *OrderKafkaConsumer) Start() {
	go c.consumeLoop()
}

func (c *OrderKafkaConsumer) Shutdown() {
	close(c.closeCh)
}

func (c *OrderKafkaConsumer) consumeLoop() {
	brokers := conf.GetConf().Kafka.Brokers
	r := initOrderKafkaReader(brokers, c.topic)
	defer func() { _ = r.Close() }()
	hlog.Infof("订单Kafka消费启动: topic=%s, groupID=%s, brokers=%v", c.topic, "order-matching", brokers)
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		m, err := r.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				hlog.Warnf("订单Kafka读取失败: %v", err)
			}
			continue
		}
		var req SubmitOrderReq
		if err := json.Unmarshal(m.Value, &req); err != nil {
			hlog.Warnf("订单消息解析失败, offset=%d, err=%v", m.Offset, err)
			continue
		}
		if _, err := c.orders.Submit(context.Background(), &req); err != nil {
			hlog.Errorf("Kafka订单提交失败, offset=%d, err=%v", m.Offset, err)
		}
	}
}

func initOrderKafkaReader(brokers []string, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "order-matching",
		MinBytes: 1000,
		MaxBytes: 20e6,
	})
}
