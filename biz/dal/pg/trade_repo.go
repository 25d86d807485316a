package pg

import (
	"context"
	"time"

	"cex-matching/biz/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

// TradeRepo 成交仓储，实现撮合引擎的 TradeStore
// 批量写走 pgx CopyFrom，无连接池时退化为 GORM 分批插入
type TradeRepo struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

func NewTradeRepo() *TradeRepo {
	return &TradeRepo{db: GormDB, pool: PostgresClient}
}

func NewTradeRepoWithDB(db *gorm.DB) *TradeRepo {
	return &TradeRepo{db: db}
}

// SaveTrades 批量写入成交，撮合引擎按吃单批次调用
func (r *TradeRepo) SaveTrades(ctx context.Context, trades []*model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	if r.pool == nil {
		return r.db.WithContext(ctx).CreateInBatches(trades, 200).Error
	}
	rows := make([][]interface{}, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []interface{}{
			t.TradeID, t.Symbol, t.BuyOrderID, t.SellOrderID, t.BuyUserID, t.SellUserID,
			t.Price, t.Quantity, t.QuoteQuantity, t.IsBuyerMaker,
			t.BuyerCommission, t.BuyerCommissionAsset, t.SellerCommission, t.SellerCommissionAsset,
			string(t.SettlementStatus), t.EngineID, t.Timestamp,
		})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"trades"},
		[]string{
			"trade_id", "symbol", "buy_order_id", "sell_order_id", "buy_user_id", "sell_user_id",
			"price", "quantity", "quote_quantity", "is_buyer_maker",
			"buyer_commission", "buyer_commission_asset", "seller_commission", "seller_commission_asset",
			"settlement_status", "engine_id", "timestamp",
		},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListTrades 查询成交记录，时间倒序
func (r *TradeRepo) ListTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	db := r.db.WithContext(ctx).Model(&model.Trade{})
	if symbol != "" {
		db = db.Where("symbol = ?", symbol)
	}
	var trades []model.Trade
	err := db.Order("timestamp desc").Limit(limit).Find(&trades).Error
	return trades, err
}

// QueryTradesBySymbolAndTime 查询某交易对在指定时间段的成交数据
func (r *TradeRepo) QueryTradesBySymbolAndTime(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp < ?", symbol, start.UnixMilli(), end.UnixMilli()).
		Find(&trades).Error
	return trades, err
}

// GetActiveTradeSymbols 查询指定时间段内有成交的所有交易对
func (r *TradeRepo) GetActiveTradeSymbols(ctx context.Context, start, end time.Time) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).Model(&model.Trade{}).Distinct().
		Where("timestamp >= ? AND timestamp < ?", start.UnixMilli(), end.UnixMilli()).
		Pluck("symbol", &symbols).Error
	return symbols, err
}
