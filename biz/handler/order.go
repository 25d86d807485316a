package handler

import (
	"context"
	"errors"

	"cex-matching/biz/model"
	"cex-matching/biz/service"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

var (
	orderService *service.OrderService
	matcher      *service.MatchEngine
)

// Init 注入业务依赖，路由注册前调用
func Init(orders *service.OrderService, m *service.MatchEngine, trades *service.TradeService, klines *service.KlineService, symbols *service.SymbolService) {
	orderService = orders
	matcher = m
	tradeService = trades
	klineService = klines
	symbolService = symbols
}

// SubmitOrder RESTful 下单接口
// 同步返回撮合结果：accepted-filled / accepted-resting / rejected / canceled-no-liquidity
func SubmitOrder(ctx context.Context, c *app.RequestContext) {
	var req service.SubmitOrderReq
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	result, err := orderService.Submit(ctx, &req)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	status := consts.StatusOK
	if result.Result == service.ResultRejected {
		status = consts.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// CancelOrder 撤单接口
func CancelOrder(ctx context.Context, c *app.RequestContext) {
	type cancelOrderRequest struct {
		OrderID string `json:"order_id"`
		UserID  string `json:"user_id"`
	}
	var req cancelOrderRequest
	if err := c.BindAndValidate(&req); err != nil || req.OrderID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "invalid request"})
		return
	}
	order, err := orderService.Cancel(ctx, req.OrderID)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "NOT_FOUND", "order_id": req.OrderID})
	case errors.Is(err, service.ErrOrderNotCancelable):
		c.JSON(consts.StatusConflict, map[string]interface{}{"error": "NOT_CANCELABLE", "order_id": req.OrderID, "status": order.Status})
	case err != nil:
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	default:
		c.JSON(consts.StatusOK, order)
	}
}

// GetOrder 查询单个订单
func GetOrder(ctx context.Context, c *app.RequestContext) {
	orderID := c.Param("id")
	order, err := orderService.GetOrder(ctx, orderID)
	if err != nil || order == nil {
		c.JSON(consts.StatusNotFound, map[string]interface{}{"error": "order not found"})
		return
	}
	c.JSON(consts.StatusOK, order)
}

// ListOrders 查询订单列表
func ListOrders(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	symbol := string(c.Query("symbol"))
	status := model.OrderStatus(c.Query("status"))
	limit := parseLimit(string(c.Query("limit")), 100)
	orders, err := orderService.ListOrders(ctx, userID, symbol, status, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, orders)
}

// ListActiveOrders 查询用户活跃订单ID（Redis缓存）
func ListActiveOrders(ctx context.Context, c *app.RequestContext) {
	userID := string(c.Query("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, map[string]interface{}{"error": "user_id参数不能为空"})
		return
	}
	ids, err := service.GetUserActiveOrders(userID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"user_id": userID, "order_ids": ids})
}
