package service

import (
	"context"
	"encoding/json"
	"time"

	kafkaDal "cex-matching/biz/dal/kafka"
	"cex-matching/biz/dal/redis"
	"cex-matching/biz/engine"
	"cex-matching/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

// EventForwarder 消费撮合引擎的出站事件并分发到下游：
// 成交批量写Kafka、Redis缓存、K线聚合、WebSocket行情推送
// 同一交易对的事件顺序与撮合顺序一致
type EventForwarder struct {
	matcher     *MatchEngine
	klines      *KlineService
	broadcaster engine.Broadcaster
	unicaster   engine.Unicaster

	tradeTopic     string
	tradeBatchChan chan *model.Trade
	closeCh        chan struct{}

	dirtyCh chan string // 盘口有变化的 symbol
}

func NewEventForwarder(matcher *MatchEngine, klines *KlineService, tradeTopic string, broadcaster engine.Broadcaster, unicaster engine.Unicaster) *EventForwarder {
	return &EventForwarder{
		matcher:        matcher,
		klines:         klines,
		broadcaster:    broadcaster,
		unicaster:      unicaster,
		tradeTopic:     tradeTopic,
		tradeBatchChan: make(chan *model.Trade, 10000),
		closeCh:        make(chan struct{}),
		dirtyCh:        make(chan string, 4096),
	}
}

// Start 启动事件分发、成交Kafka批量写入、盘口快照缓存三组协程
func (f *EventForwarder) Start() {
	go f.consumeEvents()
	go f.batchTradeKafkaWriter()
	go f.depthSnapshotLoop()
}

// Shutdown 关闭批量写入协程，写完剩余数据再退出
func (f *EventForwarder) Shutdown() {
	close(f.closeCh)
}

func (f *EventForwarder) consumeEvents() {
	for ev := range f.matcher.Events() {
		switch ev.Type {
		case engine.EventTradeExecuted:
			f.onTrade(ev)
		case engine.EventOrderProcessed:
			f.onOrderWorking(ev)
		case engine.EventOrderFilled, engine.EventOrderCanceled, engine.EventOrderRejected:
			f.onOrderClosed(ev)
		}
	}
}

func (f *EventForwarder) onTrade(ev engine.Event) {
	trade := ev.Trade
	if trade == nil {
		return
	}
	f.saveTradeToKafka(trade)
	cacheTrade(trade.Symbol, trade, 100)
	if f.klines != nil {
		f.klines.UpdateKlines(context.Background(), trade.Symbol, trade.Price, trade.Quantity, trade.Timestamp/1000)
	}
	f.markDirty(trade.Symbol)
	f.broadcast(trade.Symbol, "trade", trade)
}

func (f *EventForwarder) onOrderWorking(ev engine.Event) {
	if ev.Order == nil {
		return
	}
	cacheUserActiveOrder(ev.Order.UserID, ev.Order.OrderID)
	f.markDirty(ev.Symbol)
	f.unicast(ev.Order.UserID, "order", ev)
}

func (f *EventForwarder) onOrderClosed(ev engine.Event) {
	if ev.Order == nil {
		return
	}
	removeUserActiveOrder(ev.Order.UserID, ev.Order.OrderID)
	f.markDirty(ev.Symbol)
	f.unicast(ev.Order.UserID, "order", ev)
}

func (f *EventForwarder) markDirty(symbol string) {
	select {
	case f.dirtyCh <- symbol:
	default:
		// 快照循环会全量兜底，丢弃脏标记无害
	}
}

func (f *EventForwarder) broadcast(symbol, channel string, payload interface{}) {
	if f.broadcaster == nil {
		return
	}
	msg, err := json.Marshal(map[string]interface{}{"channel": channel, "symbol": symbol, "data": payload})
	if err != nil {
		return
	}
	f.broadcaster(symbol, msg)
}

func (f *EventForwarder) unicast(userID, channel string, payload interface{}) {
	if f.unicaster == nil || userID == "" {
		return
	}
	msg, err := json.Marshal(map[string]interface{}{"channel": channel, "data": payload})
	if err != nil {
		return
	}
	f.unicaster(userID, msg)
}

// depthSnapshotLoop 合并脏标记，定期拉取深度快照写Redis并推送
// 深度查询经过撮合队列，和写操作天然串行
func (f *EventForwarder) depthSnapshotLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	dirty := make(map[string]struct{})
	lastPushed := make(map[string]*OrderBookSnapshot)
	for {
		select {
		case symbol := <-f.dirtyCh:
			dirty[symbol] = struct{}{}
		case <-ticker.C:
			for symbol := range dirty {
				delete(dirty, symbol)
				snapshot, err := f.matcher.Depth(context.Background(), symbol, 20)
				if err != nil {
					continue
				}
				cacheOrderBookSnapshot(symbol, snapshot)
				f.broadcast(symbol, "depth", snapshot)
				bidsDelta, asksDelta, next := DiffSnapshot(snapshot, lastPushed[symbol])
				lastPushed[symbol] = next
				if len(bidsDelta) > 0 || len(asksDelta) > 0 {
					f.broadcast(symbol, "depth_delta", map[string]interface{}{
						"bids": bidsDelta,
						"asks": asksDelta,
					})
				}
			}
		case <-f.closeCh:
			return
		}
	}
}

func (f *EventForwarder) saveTradeToKafka(trade *model.Trade) {
	select {
	case f.tradeBatchChan <- trade:
	default:
		hlog.Warnf("成交Kafka批量通道已满，丢弃消息, trade_id=%s", trade.TradeID)
	}
}

// batchTradeKafkaWriter 成交批量写Kafka，攒够100条或每10ms刷一次
func (f *EventForwarder) batchTradeKafkaWriter() {
	batch := make([]kafka.Message, 0, 100)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case trade := <-f.tradeBatchChan:
			msgBytes, err := json.Marshal(trade)
			if err == nil {
				batch = append(batch, kafka.Message{Key: []byte(trade.Symbol), Value: msgBytes})
			}
			if len(batch) >= 100 {
				f.flushTradeKafkaBatch(&batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				f.flushTradeKafkaBatch(&batch)
			}
		case <-f.closeCh:
			// 收到关闭信号，写完剩余数据再退出
			if len(batch) > 0 {
				f.flushTradeKafkaBatch(&batch)
			}
			return
		}
	}
}

func (f *EventForwarder) flushTradeKafkaBatch(batch *[]kafka.Message) {
	if len(*batch) == 0 {
		return
	}
	writer := kafkaDal.GetWriter(f.tradeTopic)
	if writer == nil {
		hlog.Errorf("Kafka writer未初始化，topic=%v，无法写入Kafka", f.tradeTopic)
		return
	}
	if err := writer.WriteMessages(context.Background(), (*batch)...); err != nil {
		hlog.Errorf("批量写入Kafka失败，topic=%v，err=%v", f.tradeTopic, err)
	}
	*batch = (*batch)[:0]
}

// 缓存盘口快照到 Redis
func cacheOrderBookSnapshot(symbol string, snapshot *DepthSnapshot) {
	if redis.Client == nil {
		return
	}
	ctx := context.Background()
	key := "orderbook:" + symbol
	val, err := json.Marshal(snapshot)
	if err == nil {
		if err := redis.Client.Set(ctx, key, val, 5*time.Second).Err(); err != nil {
			hlog.Errorf("Redis Set 失败: %v", err)
		}
	}
}

// 缓存成交记录到 Redis List
func cacheTrade(symbol string, trade *model.Trade, maxLen int64) {
	if redis.Client == nil {
		return
	}
	ctx := context.Background()
	key := "trades:" + symbol
	val, err := json.Marshal(trade)
	if err == nil {
		redis.Client.LPush(ctx, key, val)
		redis.Client.LTrim(ctx, key, 0, maxLen-1)
	}
}

// 缓存用户活跃订单ID到 Redis
func cacheUserActiveOrder(userID, orderID string) {
	if redis.Client == nil || userID == "" || orderID == "" {
		return
	}
	ctx := context.Background()
	key := "user:active_orders:" + userID
	redis.Client.SAdd(ctx, key, orderID)
	redis.Client.Expire(ctx, key, 24*time.Hour)
}

// 从 Redis 移除用户活跃订单ID
func removeUserActiveOrder(userID, orderID string) {
	if redis.Client == nil || userID == "" || orderID == "" {
		return
	}
	ctx := context.Background()
	key := "user:active_orders:" + userID
	redis.Client.SRem(ctx, key, orderID)
}

// GetUserActiveOrders 查询用户活跃订单ID列表
func GetUserActiveOrders(userID string) ([]string, error) {
	if redis.Client == nil || userID == "" {
		return nil, nil
	}
	ctx := context.Background()
	key := "user:active_orders:" + userID
	return redis.Client.SMembers(ctx, key).Result()
}
