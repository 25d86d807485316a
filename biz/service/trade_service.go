package service

import (
	"context"
	"time"

	"cex-matching/biz/dal/pg"
	"cex-matching/biz/model"
)

// TradeService 业务层只做聚合和编排，数据操作全部走 pg.TradeRepo
type TradeService struct {
	repo *pg.TradeRepo
}

func NewTradeService() *TradeService {
	return &TradeService{repo: pg.NewTradeRepo()}
}

func NewTradeServiceWithRepo(repo *pg.TradeRepo) *TradeService {
	return &TradeService{repo: repo}
}

// GetRecentTrades 查询某交易对最近成交
func (s *TradeService) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	return s.repo.ListTrades(ctx, symbol, limit)
}

// GetTradesBySymbolAndTime 查询某交易对在指定时间段的成交数据
func (s *TradeService) GetTradesBySymbolAndTime(ctx context.Context, symbol string, start, end time.Time) ([]model.Trade, error) {
	return s.repo.QueryTradesBySymbolAndTime(ctx, symbol, start, end)
}

// GetActiveSymbols 查询指定时间段内有成交的所有交易对
func (s *TradeService) GetActiveSymbols(ctx context.Context, start, end time.Time) ([]string, error) {
	return s.repo.GetActiveTradeSymbols(ctx, start, end)
}
