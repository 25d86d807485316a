package pg

import (
	"context"

	"cex-matching/biz/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KlineRepo struct {
	db *gorm.DB
}

func NewKlineRepo() *KlineRepo {
	return &KlineRepo{db: GormDB}
}

func NewKlineRepoWithDB(db *gorm.DB) *KlineRepo {
	return &KlineRepo{db: db}
}

// UpsertKline upsert一条K线数据
func (r *KlineRepo) UpsertKline(ctx context.Context, kline *model.Kline) error {
	return r.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "period"}, {Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "close", "high", "low", "volume"}),
		},
	).Create(kline).Error
}

// GetKline 查询一条K线
func (r *KlineRepo) GetKline(ctx context.Context, symbol, period string, timestamp int64) (*model.Kline, error) {
	var k model.Kline
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND period = ? AND timestamp = ?", symbol, period, timestamp).
		First(&k).Error
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKlines 按时间升序查询K线
func (r *KlineRepo) ListKlines(ctx context.Context, symbol, period string, start, end int64, limit int) ([]model.Kline, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var klines []model.Kline
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND period = ? AND timestamp >= ? AND timestamp < ?", symbol, period, start, end).
		Order("timestamp asc").Limit(limit).
		Find(&klines).Error
	return klines, err
}
