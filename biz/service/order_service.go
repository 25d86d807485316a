package service

import (
	"context"
	"errors"
	"strings"

	"cex-matching/biz/dal/pg"
	"cex-matching/biz/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubmitOrderReq 下单请求，数量价格用字符串传输避免精度丢失
type SubmitOrderReq struct {
	UserID      string `json:"user_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	StopPrice   string `json:"stop_price"`
}

// OrderService 业务层只做聚合和编排，撮合交给引擎，数据操作走 pg.OrderRepo
type OrderService struct {
	matcher *MatchEngine
	repo    *pg.OrderRepo
	symbols *SymbolService
}

func NewOrderService(matcher *MatchEngine, repo *pg.OrderRepo, symbols *SymbolService) *OrderService {
	return &OrderService{matcher: matcher, repo: repo, symbols: symbols}
}

// Submit 解析请求、补全资产信息后送入撮合引擎
// 字段级校验由引擎完成，这里只拦截格式错误和未注册交易对
func (s *OrderService) Submit(ctx context.Context, req *SubmitOrderReq) (*OrderResult, error) {
	order := &model.Order{
		UserID:      req.UserID,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:        model.OrderSide(strings.ToUpper(req.Side)),
		Type:        model.OrderType(strings.ToUpper(req.Type)),
		TimeInForce: model.TimeInForce(strings.ToUpper(req.TimeInForce)),
	}
	order.Quantity = parseDecimal(req.Quantity)
	order.Price = parseDecimal(req.Price)
	order.StopPrice = parseDecimal(req.StopPrice)

	if s.symbols != nil && order.Symbol != "" {
		pair, err := s.symbols.ResolvePair(ctx, order.Symbol)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.New("unknown trading pair: " + order.Symbol)
			}
			return nil, err
		}
		if !pair.Active {
			return nil, errors.New("trading pair is not active: " + order.Symbol)
		}
		order.BaseAsset = pair.BaseAsset
		order.QuoteAsset = pair.QuoteAsset
	}
	return s.matcher.Submit(ctx, order)
}

// Cancel 用户撤单
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	return s.matcher.Cancel(ctx, orderID, ReasonUserCanceled)
}

// GetOrder 查询单个订单
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders 查询订单列表
func (s *OrderService) ListOrders(ctx context.Context, userID, symbol string, status model.OrderStatus, limit int) ([]model.Order, error) {
	return s.repo.ListUserOrders(ctx, userID, symbol, status, limit)
}

// parseDecimal 解析失败按零处理，由引擎的数量价格校验兜底拒单
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
