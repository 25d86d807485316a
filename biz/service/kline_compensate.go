package service

import (
	"context"
	"sort"
	"time"

	"cex-matching/biz/model"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// StartKlineCompensateTask 定时补偿/修正 K 线任务
// 多节点部署时通过 Consul 分布式锁保证同一时刻只有一个节点执行
func StartKlineCompensateTask(consulClient *api.Client, trades *TradeService, klines *KlineService) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			<-ticker.C
			lock, err := acquireConsulLock(consulClient, "kline_compensate_lock")
			if err != nil {
				hlog.Warnf("K线补偿任务获取Consul锁失败: %v", err)
				continue
			}
			if lock == nil {
				continue
			}
			if err := CompensateKline(trades, klines); err != nil {
				hlog.Errorf("K线补偿任务执行失败: %v", err)
			}
			_ = lock.Unlock()
		}
	}()
}

// acquireConsulLock 获取分布式锁
func acquireConsulLock(client *api.Client, key string) (*api.Lock, error) {
	lock, err := client.LockOpts(&api.LockOptions{
		Key:          key,
		LockTryOnce:  true,
		LockWaitTime: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	stopCh := make(chan struct{})
	leaderCh, err := lock.Lock(stopCh)
	if err != nil || leaderCh == nil {
		return nil, nil // 未获取到锁
	}
	return lock, nil
}

// CompensateKline 补偿/修正K线逻辑：用上一分钟的成交重算1分钟K线
func CompensateKline(trades *TradeService, klines *KlineService) error {
	end := time.Now().Truncate(time.Minute)
	start := end.Add(-time.Minute)
	ctx := context.Background()

	symbols, err := trades.GetActiveSymbols(ctx, start, end)
	if err != nil {
		hlog.Warnf("获取活跃交易对失败: %v", err)
		return err
	}
	for _, symbol := range symbols {
		rows, err := trades.GetTradesBySymbolAndTime(ctx, symbol, start, end)
		if err != nil || len(rows) == 0 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })

		kline := model.Kline{
			Symbol:    symbol,
			Period:    "1m",
			Timestamp: start.Unix(),
			Open:      rows[0].Price,
			Close:     rows[len(rows)-1].Price,
			High:      rows[0].Price,
			Low:       rows[0].Price,
		}
		for _, t := range rows {
			if t.Price.GreaterThan(kline.High) {
				kline.High = t.Price
			}
			if t.Price.LessThan(kline.Low) {
				kline.Low = t.Price
			}
			kline.Volume = kline.Volume.Add(t.Quantity)
		}
		if err := klines.repo.UpsertKline(ctx, &kline); err != nil {
			hlog.Errorf("K线 upsert 失败: %v, symbol=%s, ts=%d", err, symbol, start.Unix())
		}
	}
	hlog.Info("K线补偿任务执行: ", zap.Time("start", start), zap.Time("end", end))
	return nil
}
