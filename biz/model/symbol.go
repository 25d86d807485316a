package model

// TradingPair 交易对元数据
// 提交订单时据此解析 base/quote 资产，手续费计价资产也由此决定
type TradingPair struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"uniqueIndex;not null"` // 例如 BTCUSDT
	BaseAsset  string `gorm:"not null"`             // 例如 BTC
	QuoteAsset string `gorm:"not null"`             // 例如 USDT
	Active     bool   `gorm:"not null;default:true"`
}

func (TradingPair) TableName() string {
	return "trading_pairs"
}
