package handler

import (
	"context"
	"strconv"
	"time"

	"cex-matching/biz/service"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/shopspring/decimal"
)

var (
	tradeService  *service.TradeService
	klineService  *service.KlineService
	symbolService *service.SymbolService
)

func parseLimit(limitStr string, defaultLimit int) int {
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

// GetDepth 获取深度（盘口快照）
// 深度查询经过撮合队列，返回的是撮合视角的一致快照
func GetDepth(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	if symbol == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol参数不能为空"})
		return
	}
	depth := parseLimit(string(c.Query("limit")), 20)
	snapshot, err := matcher.Depth(ctx, symbol, depth)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, snapshot)
}

// GetTrades 获取最新成交
func GetTrades(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	limit := parseLimit(string(c.Query("limit")), 50)
	trades, err := tradeService.GetRecentTrades(ctx, symbol, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"trades": trades,
	})
}

// GetTicker 获取ticker（最新价、24h量）
func GetTicker(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	if symbol == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol参数不能为空"})
		return
	}
	now := time.Now()
	trades, err := tradeService.GetTradesBySymbolAndTime(ctx, symbol, now.Add(-24*time.Hour), now)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	resp := map[string]interface{}{"symbol": symbol}
	if len(trades) > 0 {
		volume := decimal.Zero
		high := trades[0].Price
		low := trades[0].Price
		for _, t := range trades {
			volume = volume.Add(t.Quantity)
			if t.Price.GreaterThan(high) {
				high = t.Price
			}
			if t.Price.LessThan(low) {
				low = t.Price
			}
		}
		last := trades[len(trades)-1]
		resp["last_price"] = last.Price
		resp["high_24h"] = high
		resp["low_24h"] = low
		resp["volume_24h"] = volume
	}
	c.JSON(consts.StatusOK, resp)
}

// GetKline 获取K线数据
func GetKline(ctx context.Context, c *app.RequestContext) {
	symbol := string(c.Query("symbol"))
	period := string(c.Query("period"))
	if symbol == "" || period == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "symbol和period参数不能为空"})
		return
	}
	limit := parseLimit(string(c.Query("limit")), 100)
	end := time.Now().Unix()
	if e := string(c.Query("end")); e != "" {
		if v, err := strconv.ParseInt(e, 10, 64); err == nil {
			end = v
		}
	}
	start := int64(0)
	if s := string(c.Query("start")); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			start = v
		}
	}
	klines, err := klineService.ListKlines(ctx, symbol, period, start, end, limit)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"period": period,
		"kline":  klines,
	})
}

// ListSymbols 查询全部可交易的交易对
func ListSymbols(ctx context.Context, c *app.RequestContext) {
	pairs, err := symbolService.ListActivePairs(ctx)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, pairs)
}

// RegisterSymbol 注册交易对
func RegisterSymbol(ctx context.Context, c *app.RequestContext) {
	type registerSymbolRequest struct {
		Symbol     string `json:"symbol"`
		BaseAsset  string `json:"base_asset"`
		QuoteAsset string `json:"quote_asset"`
	}
	var req registerSymbolRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if err := symbolService.RegisterPair(ctx, req.Symbol, req.BaseAsset, req.QuoteAsset); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"symbol": req.Symbol, "status": "registered"})
}

// GetHealth 引擎健康状态
func GetHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, matcher.Health())
}
