package service

import (
	"context"
	"fmt"
	"strings"

	"cex-matching/biz/dal/pg"
	"cex-matching/biz/model"
)

// SymbolService 交易对注册与查询
type SymbolService struct {
	repo *pg.SymbolRepo
}

func NewSymbolService() *SymbolService {
	return &SymbolService{repo: pg.NewSymbolRepo()}
}

func NewSymbolServiceWithRepo(repo *pg.SymbolRepo) *SymbolService {
	return &SymbolService{repo: repo}
}

// RegisterPair 注册交易对，已存在时更新资产与状态
func (s *SymbolService) RegisterPair(ctx context.Context, symbol, base, quote string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || base == "" || quote == "" {
		return fmt.Errorf("invalid trading pair: symbol=%q base=%q quote=%q", symbol, base, quote)
	}
	return s.repo.UpsertTradingPair(ctx, &model.TradingPair{
		Symbol:     symbol,
		BaseAsset:  strings.ToUpper(base),
		QuoteAsset: strings.ToUpper(quote),
		Active:     true,
	})
}

// ResolvePair 按 symbol 查询交易对
func (s *SymbolService) ResolvePair(ctx context.Context, symbol string) (*model.TradingPair, error) {
	return s.repo.GetTradingPair(ctx, strings.ToUpper(symbol))
}

// ListActivePairs 所有可交易的交易对
func (s *SymbolService) ListActivePairs(ctx context.Context) ([]model.TradingPair, error) {
	return s.repo.ListActiveTradingPairs(ctx)
}
