package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 成交结算状态，由外部结算服务推进 PENDING -> SETTLED/FAILED
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "PENDING"
	SettlementSettled SettlementStatus = "SETTLED"
	SettlementFailed  SettlementStatus = "FAILED"
)

// Trade 成交模型（GORM），创建后不可变
type Trade struct {
	TradeID     string `gorm:"primaryKey;column:trade_id" json:"trade_id"`
	Symbol      string `gorm:"column:symbol;index" json:"symbol"`
	BuyOrderID  string `gorm:"column:buy_order_id;index" json:"buy_order_id"`
	SellOrderID string `gorm:"column:sell_order_id;index" json:"sell_order_id"`
	BuyUserID   string `gorm:"column:buy_user_id" json:"buy_user_id"`
	SellUserID  string `gorm:"column:sell_user_id" json:"sell_user_id"`

	Price         decimal.Decimal `gorm:"column:price;type:numeric(36,18)" json:"price"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:numeric(36,18)" json:"quantity"`
	QuoteQuantity decimal.Decimal `gorm:"column:quote_quantity;type:numeric(36,18)" json:"quote_quantity"`

	// 买方是挂单方时为 true，成交价永远取挂单方价格
	IsBuyerMaker bool `gorm:"column:is_buyer_maker" json:"is_buyer_maker"`

	BuyerCommission       decimal.Decimal `gorm:"column:buyer_commission;type:numeric(36,18)" json:"buyer_commission"`
	BuyerCommissionAsset  string          `gorm:"column:buyer_commission_asset" json:"buyer_commission_asset"`
	SellerCommission      decimal.Decimal `gorm:"column:seller_commission;type:numeric(36,18)" json:"seller_commission"`
	SellerCommissionAsset string          `gorm:"column:seller_commission_asset" json:"seller_commission_asset"`

	SettlementStatus SettlementStatus `gorm:"column:settlement_status" json:"settlement_status"`

	EngineID  string         `gorm:"column:engine_id" json:"engine_id"`
	Timestamp int64          `gorm:"column:timestamp;index" json:"timestamp"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Trade) TableName() string {
	return "trades"
}
