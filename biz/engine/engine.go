package engine

import (
	"cex-matching/biz/model"

	"github.com/panjf2000/ants/v2"
)

var BroadcastPool *ants.Pool

func InitBroadcastPool(size int) error {
	pool, err := ants.NewPool(size)
	if err != nil {
		return err
	}
	BroadcastPool = pool
	return nil
}

// EventType 撮合生命周期事件类型
type EventType string

const (
	EventOrderFilled    EventType = "orderFilled"
	EventOrderProcessed EventType = "orderProcessed"
	EventOrderRejected  EventType = "orderRejected"
	EventOrderCanceled  EventType = "orderCanceled"
	EventTradeExecuted  EventType = "tradeExecuted"
)

// Event 撮合线程产出的出站事件
// 通过显式的有序通道交给持久化/推送消费者，同一 symbol 的事件顺序与撮合顺序一致
type Event struct {
	Type      EventType    `json:"type"`
	Symbol    string       `json:"symbol"`
	Order     *model.Order `json:"order,omitempty"` // 订单快照，非在线对象
	Trade     *model.Trade `json:"trade,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Broadcaster 频道广播回调类型
type Broadcaster func(symbol string, msg []byte)

// Unicaster 用户单播回调类型
type Unicaster func(userID string, msg []byte)
