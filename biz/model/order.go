package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// 订单类型
type OrderType string

const (
	TypeMarket     OrderType = "MARKET"
	TypeLimit      OrderType = "LIMIT"
	TypeStopLoss   OrderType = "STOP_LOSS"
	TypeStopLimit  OrderType = "STOP_LIMIT"
	TypeTakeProfit OrderType = "TAKE_PROFIT"
)

// IsStop 止盈止损类订单挂起等待触发，不直接进盘口
func (t OrderType) IsStop() bool {
	return t == TypeStopLoss || t == TypeStopLimit || t == TypeTakeProfit
}

// 订单有效期策略
type TimeInForce string

const (
	TifGTC TimeInForce = "GTC" // 一直有效直到撤单
	TifIOC TimeInForce = "IOC" // 立即成交，剩余部分取消
	TifFOK TimeInForce = "FOK" // 全部成交否则整单作废
)

// 订单状态
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal 终态订单不允许再变更
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

var (
	ErrOrderTerminal = errors.New("order is in terminal state")
	ErrOverFill      = errors.New("fill exceeds order quantity")
)

// Fill 单笔成交明细，按成交先后追加到订单上
type Fill struct {
	TradeID         string          `json:"trade_id"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset"`
	Timestamp       int64           `json:"timestamp"`
}

// FillList 以JSONB形式落库
type FillList []Fill

func (f FillList) Value() (driver.Value, error) {
	if f == nil {
		f = FillList{}
	}
	return json.Marshal(f)
}

func (f *FillList) Scan(src interface{}) error {
	if src == nil {
		*f = FillList{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported fills column type %T", src)
	}
}

// Order 订单模型（GORM）
// 盘口里的挂单条目只是该记录的视图，成交进度一律以本结构为准
type Order struct {
	OrderID    string `gorm:"primaryKey;column:order_id" json:"order_id"`
	UserID     string `gorm:"column:user_id;index" json:"user_id"`
	Symbol     string `gorm:"column:symbol;index" json:"symbol"`
	BaseAsset  string `gorm:"column:base_asset" json:"base_asset"`
	QuoteAsset string `gorm:"column:quote_asset" json:"quote_asset"`

	Side        OrderSide   `gorm:"column:side" json:"side"`
	Type        OrderType   `gorm:"column:type" json:"type"`
	TimeInForce TimeInForce `gorm:"column:time_in_force" json:"time_in_force"`

	Quantity  decimal.Decimal `gorm:"column:quantity;type:numeric(36,18)" json:"quantity"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(36,18)" json:"price"`
	StopPrice decimal.Decimal `gorm:"column:stop_price;type:numeric(36,18)" json:"stop_price"`

	ExecutedQuantity decimal.Decimal `gorm:"column:executed_quantity;type:numeric(36,18)" json:"executed_quantity"`
	CumulativeQuote  decimal.Decimal `gorm:"column:cumulative_quote_quantity;type:numeric(36,18)" json:"cumulative_quote_quantity"`
	AveragePrice     decimal.Decimal `gorm:"column:average_price;type:numeric(36,18)" json:"average_price"`
	Fills            FillList        `gorm:"column:fills;type:jsonb" json:"fills"`

	Status    OrderStatus `gorm:"column:status;index" json:"status"`
	IsWorking bool        `gorm:"column:is_working;index" json:"is_working"`
	Reason    string      `gorm:"column:reason" json:"reason,omitempty"`

	OrderTime int64          `gorm:"column:order_time" json:"order_time"`
	UpdatedAt int64          `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

// RemainingQuantity 剩余未成交数量
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.ExecutedQuantity)
}

// IsCancelable 只有 NEW / PARTIALLY_FILLED 允许撤单
func (o *Order) IsCancelable() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// AddFill 追加一笔成交并推进执行状态
// 不变式: executedQuantity == Σ fills.quantity <= quantity
func (o *Order) AddFill(f Fill, now int64) error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	if o.ExecutedQuantity.Add(f.Quantity).GreaterThan(o.Quantity) {
		return ErrOverFill
	}
	o.Fills = append(o.Fills, f)
	o.ExecutedQuantity = o.ExecutedQuantity.Add(f.Quantity)
	o.CumulativeQuote = o.CumulativeQuote.Add(f.Quantity.Mul(f.Price))
	if o.ExecutedQuantity.IsPositive() {
		o.AveragePrice = o.CumulativeQuote.Div(o.ExecutedQuantity)
	}
	if o.ExecutedQuantity.GreaterThanOrEqual(o.Quantity) {
		o.Status = StatusFilled
		o.IsWorking = false
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = now
	return nil
}

// Cancel 取消订单，终态订单返回错误而不是静默成功
func (o *Order) Cancel(reason string, now int64) error {
	if !o.IsCancelable() {
		return ErrOrderTerminal
	}
	o.Status = StatusCanceled
	o.IsWorking = false
	o.Reason = reason
	o.UpdatedAt = now
	return nil
}

// Expire FOK 无法全量成交时整单作废
func (o *Order) Expire(reason string, now int64) error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = StatusExpired
	o.IsWorking = false
	o.Reason = reason
	o.UpdatedAt = now
	return nil
}

// Reject 校验失败或撮合异常时拒绝订单
func (o *Order) Reject(reason string, now int64) {
	o.Status = StatusRejected
	o.IsWorking = false
	o.Reason = reason
	o.UpdatedAt = now
}

// Clone 订单快照，事件推送用，避免撮合线程后续修改造成数据竞争
func (o *Order) Clone() *Order {
	cp := *o
	cp.Fills = make(FillList, len(o.Fills))
	copy(cp.Fills, o.Fills)
	return &cp
}
