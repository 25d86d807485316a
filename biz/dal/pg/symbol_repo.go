package pg

import (
	"context"

	"cex-matching/biz/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SymbolRepo struct {
	db *gorm.DB
}

func NewSymbolRepo() *SymbolRepo {
	return &SymbolRepo{db: GormDB}
}

func NewSymbolRepoWithDB(db *gorm.DB) *SymbolRepo {
	return &SymbolRepo{db: db}
}

// UpsertTradingPair 注册或更新交易对
func (r *SymbolRepo) UpsertTradingPair(ctx context.Context, pair *model.TradingPair) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_asset", "quote_asset", "active"}),
	}).Create(pair).Error
}

// GetTradingPair 按 symbol 查询交易对
func (r *SymbolRepo) GetTradingPair(ctx context.Context, symbol string) (*model.TradingPair, error) {
	var pair model.TradingPair
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&pair).Error
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// ListActiveTradingPairs 所有可交易的交易对
func (r *SymbolRepo) ListActiveTradingPairs(ctx context.Context) ([]model.TradingPair, error) {
	var pairs []model.TradingPair
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("symbol asc").Find(&pairs).Error
	return pairs, err
}
