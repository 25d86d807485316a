package model

import "github.com/shopspring/decimal"

type Kline struct {
	ID        uint            `gorm:"primaryKey"`
	Symbol    string          `gorm:"uniqueIndex:idx_symbol_period_time"`
	Period    string          `gorm:"uniqueIndex:idx_symbol_period_time"`
	Timestamp int64           `gorm:"uniqueIndex:idx_symbol_period_time"`
	Open      decimal.Decimal `gorm:"type:numeric(36,18)"`
	Close     decimal.Decimal `gorm:"type:numeric(36,18)"`
	High      decimal.Decimal `gorm:"type:numeric(36,18)"`
	Low       decimal.Decimal `gorm:"type:numeric(36,18)"`
	Volume    decimal.Decimal `gorm:"type:numeric(36,18)"`
}

func (Kline) TableName() string {
	return "kline"
}
