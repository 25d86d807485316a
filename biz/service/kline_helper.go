package service

import (
	"context"
	"encoding/json"
	"errors"

	"cex-matching/biz/dal/pg"
	"cex-matching/biz/dal/redis"
	"cex-matching/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var klinePeriods = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w", "1M"}
var klinePeriodSeconds = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
	"1w":  604800,
	"1M":  2592000, // 30天
}

// KlineService 多周期K线聚合
type KlineService struct {
	repo *pg.KlineRepo
}

func NewKlineService() *KlineService {
	return &KlineService{repo: pg.NewKlineRepo()}
}

func NewKlineServiceWithRepo(repo *pg.KlineRepo) *KlineService {
	return &KlineService{repo: repo}
}

// UpdateKlines 按成交聚合并写入多周期K线，ts 为秒
func (s *KlineService) UpdateKlines(ctx context.Context, symbol string, price, qty decimal.Decimal, ts int64) {
	for _, period := range klinePeriods {
		bucket := ts / klinePeriodSeconds[period] * klinePeriodSeconds[period]
		k, err := s.repo.GetKline(ctx, symbol, period, bucket)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			k = &model.Kline{
				Symbol:    symbol,
				Period:    period,
				Timestamp: bucket,
				Open:      price,
				Close:     price,
				High:      price,
				Low:       price,
				Volume:    qty,
			}
		case err != nil:
			hlog.Warnf("K线查询失败, symbol=%s, period=%s, err=%v", symbol, period, err)
			continue
		default:
			if price.GreaterThan(k.High) {
				k.High = price
			}
			if price.LessThan(k.Low) {
				k.Low = price
			}
			k.Close = price
			k.Volume = k.Volume.Add(qty)
		}
		if err := s.repo.UpsertKline(ctx, k); err != nil {
			hlog.Errorf("K线写入失败, symbol=%s, period=%s, err=%v", symbol, period, err)
			continue
		}
		s.cacheKline(ctx, symbol, period, k)
	}
}

// ListKlines 查询K线
func (s *KlineService) ListKlines(ctx context.Context, symbol, period string, start, end int64, limit int) ([]model.Kline, error) {
	if _, ok := klinePeriodSeconds[period]; !ok {
		return nil, errors.New("unsupported kline period: " + period)
	}
	return s.repo.ListKlines(ctx, symbol, period, start, end, limit)
}

// cacheKline 写入Redis，只保留最新1000条
func (s *KlineService) cacheKline(ctx context.Context, symbol, period string, k *model.Kline) {
	if redis.Client == nil {
		return
	}
	b, err := json.Marshal(k)
	if err != nil {
		return
	}
	redisKey := "kline:" + symbol + ":" + period
	redis.Client.RPush(ctx, redisKey, b)
	redis.Client.LTrim(ctx, redisKey, -1000, -1)
}
