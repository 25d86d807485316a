package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cex-matching/biz/engine"
	"cex-matching/biz/model"
	"cex-matching/util"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/shopspring/decimal"
)

// OrderStore 订单持久化协作方
// 引擎只依赖该接口，pg 层提供实现，测试用内存实现
type OrderStore interface {
	SaveOrder(ctx context.Context, order *model.Order) error
	UpdateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	// ListWorkingOrders 返回 status ∈ {NEW, PARTIALLY_FILLED} 且 isWorking 的订单，
	// 外加状态 NEW 的挂起止盈止损单（落库时 isWorking=false），按下单时间升序
	ListWorkingOrders(ctx context.Context) ([]*model.Order, error)
}

// TradeStore 成交持久化协作方
// 一次吃单可能扫过多个价位产生多笔成交，按批落库
type TradeStore interface {
	SaveTrades(ctx context.Context, trades []*model.Trade) error
}

// SubmitResult 下单处理结果标签
type SubmitResult string

const (
	ResultFilled              SubmitResult = "accepted-filled"
	ResultResting             SubmitResult = "accepted-resting"
	ResultRejected            SubmitResult = "rejected"
	ResultCanceled            SubmitResult = "canceled"
	ResultCanceledNoLiquidity SubmitResult = "canceled-no-liquidity"
)

// 撤单/作废原因，对外可见
const (
	ReasonInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	ReasonIOCCanceled           = "IOC_CANCELED"
	ReasonFOKNoFill             = "FOK_NO_FILL"
	ReasonUserCanceled          = "USER_CANCELED"
)

var (
	ErrOrderNotFound      = errors.New("NOT_FOUND")
	ErrOrderNotCancelable = errors.New("NOT_CANCELABLE")
	ErrEngineStopped      = errors.New("match engine is not running")
)

// OrderResult 单笔订单的最终处理结果
type OrderResult struct {
	Order  *model.Order   `json:"order"`
	Result SubmitResult   `json:"result"`
	Reason string         `json:"reason,omitempty"`
	Trades []*model.Trade `json:"trades,omitempty"`
}

// EngineStatus 引擎健康状态
type EngineStatus struct {
	Running         bool  `json:"running"`
	ProcessedOrders int64 `json:"processed_orders"`
	ExecutedTrades  int64 `json:"executed_trades"`
	ActiveBooks     int   `json:"active_books"`
	PendingStops    int   `json:"pending_stops"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

type taskKind int

const (
	taskSubmit taskKind = iota
	taskCancel
	taskRestore
	taskActivate
	taskDepth
)

type taskReply struct {
	result *OrderResult
	order  *model.Order
	depth  *DepthSnapshot
	err    error
}

type engineTask struct {
	kind    taskKind
	order   *model.Order
	orderID string
	reason  string
	depth   int
	reply   chan taskReply
}

// MatchEngine 撮合引擎实例
// 每个交易对一个撮合 goroutine，消费有序任务队列，同一交易对内
// 下单、撤单、查询严格串行，不需要对盘口加锁
type MatchEngine struct {
	engineID  string
	takerRate decimal.Decimal
	makerRate decimal.Decimal

	books  *OrderBookManager
	orders OrderStore
	trades TradeStore
	events chan engine.Event

	mu       sync.RWMutex
	queues   map[string]chan *engineTask
	symbolOf map[string]string // orderID -> symbol，撤单路由

	processedOrders atomic.Int64
	executedTrades  atomic.Int64
	pendingStops    atomic.Int64
	running         atomic.Bool
	startedAt       time.Time
	wg              sync.WaitGroup
}

// NewMatchEngine 构造撮合引擎
// takerRate/makerRate 为空串时使用默认费率 0.001
func NewMatchEngine(engineID string, orders OrderStore, trades TradeStore, takerRate, makerRate string) *MatchEngine {
	e := &MatchEngine{
		engineID:  engineID,
		takerRate: parseRate(takerRate),
		makerRate: parseRate(makerRate),
		books:     NewOrderBookManager(),
		orders:    orders,
		trades:    trades,
		events:    make(chan engine.Event, 8192),
		queues:    make(map[string]chan *engineTask),
		symbolOf:  make(map[string]string),
		startedAt: time.Now(),
	}
	e.running.Store(true)
	return e
}

func parseRate(s string) decimal.Decimal {
	if s == "" {
		return decimal.NewFromFloat(0.001)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		hlog.Warnf("非法费率配置 %q，使用默认 0.001", s)
		return decimal.NewFromFloat(0.001)
	}
	return d
}

// Events 出站事件通道，由持久化/推送消费者按序消费
func (m *MatchEngine) Events() <-chan engine.Event {
	return m.events
}

// Recover 启动时从持久化层重建各交易对盘口
// 使用原始剩余数量与原始下单时间，保证重启后时间优先级不变
func (m *MatchEngine) Recover(ctx context.Context) error {
	working, err := m.orders.ListWorkingOrders(ctx)
	if err != nil {
		return fmt.Errorf("load working orders: %w", err)
	}
	sort.SliceStable(working, func(i, j int) bool {
		return working[i].OrderTime < working[j].OrderTime
	})
	hlog.Infof("盘口恢复开始, working_orders=%d", len(working))
	for _, order := range working {
		task := &engineTask{kind: taskRestore, order: order, reply: make(chan taskReply, 1)}
		if err := m.dispatch(order.Symbol, task); err != nil {
			return err
		}
		if reply := <-task.reply; reply.err != nil {
			hlog.Errorf("恢复挂单失败, order_id=%s, err=%v", order.OrderID, reply.err)
		}
	}
	hlog.Infof("盘口恢复完成, books=%d", m.books.Count())
	return nil
}

// Submit 提交订单并等待撮合结果
// 订单ID由引擎生成，调用方不允许指定
func (m *MatchEngine) Submit(ctx context.Context, order *model.Order) (*OrderResult, error) {
	if !m.running.Load() {
		return nil, ErrEngineStopped
	}
	if order.OrderID == "" {
		id, err := util.GenerateOrderID()
		if err != nil {
			return nil, fmt.Errorf("generate order id: %w", err)
		}
		order.OrderID = id
	}
	now := time.Now().UnixMilli()
	if order.OrderTime == 0 {
		order.OrderTime = now
	}
	order.UpdatedAt = now
	order.Status = model.StatusNew
	if order.TimeInForce == "" {
		order.TimeInForce = model.TifGTC
	}

	task := &engineTask{kind: taskSubmit, order: order, reply: make(chan taskReply, 1)}
	if err := m.dispatch(order.Symbol, task); err != nil {
		return nil, err
	}
	select {
	case reply := <-task.reply:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel 撤单，只允许 NEW / PARTIALLY_FILLED
// 终态订单返回 NOT_CANCELABLE，未知订单返回 NOT_FOUND，不做任何状态修改
func (m *MatchEngine) Cancel(ctx context.Context, orderID, reason string) (*model.Order, error) {
	if !m.running.Load() {
		return nil, ErrEngineStopped
	}
	if reason == "" {
		reason = ReasonUserCanceled
	}
	m.mu.RLock()
	symbol, ok := m.symbolOf[orderID]
	m.mu.RUnlock()
	if !ok {
		// 不在内存工作集，回查持久化层区分 NOT_FOUND 与 NOT_CANCELABLE
		stored, err := m.orders.GetOrder(ctx, orderID)
		if err != nil || stored == nil {
			return nil, ErrOrderNotFound
		}
		return stored, ErrOrderNotCancelable
	}

	task := &engineTask{kind: taskCancel, orderID: orderID, reason: reason, reply: make(chan taskReply, 1)}
	if err := m.dispatch(symbol, task); err != nil {
		return nil, err
	}
	select {
	case reply := <-task.reply:
		return reply.order, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActivateStopOrder 由外部价格触发器调用，把挂起的止盈止损单转为可撮合订单
// 触发时机的监控不在引擎职责内
func (m *MatchEngine) ActivateStopOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	if !m.running.Load() {
		return nil, ErrEngineStopped
	}
	m.mu.RLock()
	symbol, ok := m.symbolOf[orderID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	task := &engineTask{kind: taskActivate, orderID: orderID, reply: make(chan taskReply, 1)}
	if err := m.dispatch(symbol, task); err != nil {
		return nil, err
	}
	select {
	case reply := <-task.reply:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth 盘口深度快照，读请求同样经过撮合队列，天然与写操作串行
func (m *MatchEngine) Depth(ctx context.Context, symbol string, depth int) (*DepthSnapshot, error) {
	if depth <= 0 {
		depth = 20
	}
	if _, ok := m.books.Get(symbol); !ok {
		return &DepthSnapshot{Symbol: symbol, Bids: []PriceLevelView{}, Asks: []PriceLevelView{}}, nil
	}
	task := &engineTask{kind: taskDepth, depth: depth, reply: make(chan taskReply, 1)}
	if err := m.dispatch(symbol, task); err != nil {
		return nil, err
	}
	select {
	case reply := <-task.reply:
		return reply.depth, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Health 引擎健康状态
func (m *MatchEngine) Health() EngineStatus {
	return EngineStatus{
		Running:         m.running.Load(),
		ProcessedOrders: m.processedOrders.Load(),
		ExecutedTrades:  m.executedTrades.Load(),
		ActiveBooks:     m.books.Count(),
		PendingStops:    int(m.pendingStops.Load()),
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
	}
}

// Shutdown 停止接收新任务，排空队列后关闭事件通道
func (m *MatchEngine) Shutdown() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.mu.Lock()
	for _, queue := range m.queues {
		close(queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
	close(m.events)
	hlog.Infof("撮合引擎已停止, engine_id=%s", m.engineID)
}

// dispatch 把任务送入交易对的撮合队列，首次出现的交易对惰性启动撮合线程
// 入队必须持锁并复核 running：Shutdown 持写锁关闭队列，
// 持锁期间向已验证存活的队列发送不可能撞上 close
// 队列满时放锁重试，不在持锁状态下阻塞，避免卡住撮合线程的注册操作
func (m *MatchEngine) dispatch(symbol string, task *engineTask) error {
	for {
		m.mu.RLock()
		if !m.running.Load() {
			m.mu.RUnlock()
			return ErrEngineStopped
		}
		if queue, ok := m.queues[symbol]; ok {
			select {
			case queue <- task:
				m.mu.RUnlock()
				return nil
			default:
				m.mu.RUnlock()
				time.Sleep(time.Millisecond)
				continue
			}
		}
		m.mu.RUnlock()

		m.mu.Lock()
		if !m.running.Load() {
			m.mu.Unlock()
			return ErrEngineStopped
		}
		if _, ok := m.queues[symbol]; !ok {
			queue := make(chan *engineTask, 10000)
			m.queues[symbol] = queue
			m.wg.Add(1)
			go m.matchWorker(symbol, queue)
		}
		m.mu.Unlock()
	}
}

func (m *MatchEngine) registerOrder(order *model.Order) {
	m.mu.Lock()
	m.symbolOf[order.OrderID] = order.Symbol
	m.mu.Unlock()
}

func (m *MatchEngine) unregisterOrder(orderID string) {
	m.mu.Lock()
	delete(m.symbolOf, orderID)
	m.mu.Unlock()
}

// workerState 撮合线程私有状态，只在该线程内读写
type workerState struct {
	book  *OrderBook
	live  map[string]*model.Order // 工作中的订单（含挂起止损单）
	stops map[string]*model.Order // 挂起等待触发的止盈止损单
}

func (m *MatchEngine) matchWorker(symbol string, queue chan *engineTask) {
	defer m.wg.Done()
	st := &workerState{
		book:  m.books.GetOrCreate(symbol),
		live:  make(map[string]*model.Order),
		stops: make(map[string]*model.Order),
	}
	hlog.Infof("撮合线程启动, symbol=%s, engine_id=%s", symbol, m.engineID)
	for task := range queue {
		m.runTask(st, task)
	}
	hlog.Infof("撮合线程退出, symbol=%s", symbol)
}

// runTask 执行单个任务，panic 被限制在单笔订单范围内
// 撮合采用先规划后落账，规划阶段只读，异常不会留下改了一半的盘口
func (m *MatchEngine) runTask(st *workerState, task *engineTask) {
	defer func() {
		if r := recover(); r != nil {
			hlog.Errorf("撮合任务panic, symbol=%s, err=%v, stack=%s", st.book.Symbol(), r, debug.Stack())
			reply := taskReply{err: fmt.Errorf("processing error: %v", r)}
			if task.kind == taskSubmit && task.order != nil {
				now := time.Now().UnixMilli()
				task.order.Reject(fmt.Sprintf("Processing error: %v", r), now)
				m.persistNewOrder(task.order)
				m.emit(engine.Event{Type: engine.EventOrderRejected, Symbol: task.order.Symbol, Order: task.order.Clone(), Reason: task.order.Reason, Timestamp: now})
				reply.result = &OrderResult{Order: task.order, Result: ResultRejected, Reason: task.order.Reason}
				reply.err = nil
			}
			task.reply <- reply
		}
	}()

	switch task.kind {
	case taskSubmit:
		m.processedOrders.Add(1)
		task.reply <- taskReply{result: m.processOrder(st, task.order)}
	case taskRestore:
		task.reply <- taskReply{err: m.restoreOrder(st, task.order)}
	case taskCancel:
		order, err := m.cancelOrder(st, task.orderID, task.reason)
		task.reply <- taskReply{order: order, err: err}
	case taskActivate:
		result, err := m.activateStop(st, task.orderID)
		task.reply <- taskReply{result: result, err: err}
	case taskDepth:
		task.reply <- taskReply{depth: st.book.Depth(task.depth)}
	}
}

// validateOrder 基础校验，返回非空串表示拒单原因
// 校验失败是唯一不接触盘口就进入 REJECTED 的路径
func validateOrder(order *model.Order) string {
	if order.Symbol == "" || order.Side == "" || order.Type == "" {
		return "Missing required order fields"
	}
	if order.Side != model.SideBuy && order.Side != model.SideSell {
		return fmt.Sprintf("Unsupported order side: %s", order.Side)
	}
	switch order.Type {
	case model.TypeMarket, model.TypeLimit, model.TypeStopLoss, model.TypeStopLimit, model.TypeTakeProfit:
	default:
		return fmt.Sprintf("Unsupported order type: %s", order.Type)
	}
	if !order.Quantity.IsPositive() {
		return "Invalid quantity"
	}
	if (order.Type == model.TypeLimit || order.Type == model.TypeStopLimit) && !order.Price.IsPositive() {
		return "Invalid price for limit order"
	}
	if order.Type.IsStop() && !order.StopPrice.IsPositive() {
		return "Invalid stop price"
	}
	return ""
}

// processOrder 单笔订单的完整撮合流程
func (m *MatchEngine) processOrder(st *workerState, order *model.Order) *OrderResult {
	now := time.Now().UnixMilli()
	if reason := validateOrder(order); reason != "" {
		order.Reject(reason, now)
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderRejected, Symbol: order.Symbol, Order: order.Clone(), Reason: reason, Timestamp: now})
		hlog.Infof("订单被拒绝, order_id=%s, reason=%s", order.OrderID, reason)
		return &OrderResult{Order: order, Result: ResultRejected, Reason: reason}
	}

	// 止盈止损单挂起等待外部触发，不进可撮合盘口
	if order.Type.IsStop() {
		order.IsWorking = false
		st.stops[order.OrderID] = order
		st.live[order.OrderID] = order
		m.registerOrder(order)
		m.pendingStops.Add(1)
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderProcessed, Symbol: order.Symbol, Order: order.Clone(), Timestamp: now})
		hlog.Infof("止损单挂起等待触发, order_id=%s, type=%s, stop_price=%s", order.OrderID, order.Type, order.StopPrice)
		return &OrderResult{Order: order, Result: ResultResting}
	}

	isMarket := order.Type == model.TypeMarket

	// FOK 预检：对手盘吃不满直接整单作废，盘口不动
	if order.TimeInForce == model.TifFOK {
		crossable := st.book.CrossableQuantity(order.Side, order.Price, isMarket)
		if crossable.LessThan(order.Quantity) {
			_ = order.Expire(ReasonFOKNoFill, now)
			m.persistNewOrder(order)
			m.emit(engine.Event{Type: engine.EventOrderCanceled, Symbol: order.Symbol, Order: order.Clone(), Reason: ReasonFOKNoFill, Timestamp: now})
			hlog.Infof("FOK订单作废, order_id=%s, crossable=%s, quantity=%s", order.OrderID, crossable, order.Quantity)
			return &OrderResult{Order: order, Result: ResultCanceled, Reason: ReasonFOKNoFill}
		}
	}

	// 先规划后落账
	plan := st.book.PlanMatches(order.Side, order.Price, isMarket, order.Quantity)
	trades := m.applyMatches(st, order, plan, now)

	remaining := order.RemainingQuantity()
	switch {
	case !remaining.IsPositive():
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderFilled, Symbol: order.Symbol, Order: order.Clone(), Timestamp: now})
		hlog.Infof("订单全部成交, order_id=%s, trade_count=%d, avg_price=%s", order.OrderID, len(trades), order.AveragePrice)
		return &OrderResult{Order: order, Result: ResultFilled, Trades: trades}

	case isMarket:
		// 市价单永不挂盘，吃完可用流动性后取消剩余
		_ = order.Cancel(ReasonInsufficientLiquidity, now)
		m.unregisterLive(st, order.OrderID)
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderCanceled, Symbol: order.Symbol, Order: order.Clone(), Reason: ReasonInsufficientLiquidity, Timestamp: now})
		hlog.Infof("市价单流动性不足, order_id=%s, filled=%s, canceled=%s", order.OrderID, order.ExecutedQuantity, remaining)
		return &OrderResult{Order: order, Result: ResultCanceledNoLiquidity, Reason: ReasonInsufficientLiquidity, Trades: trades}

	case order.TimeInForce == model.TifIOC:
		_ = order.Cancel(ReasonIOCCanceled, now)
		m.unregisterLive(st, order.OrderID)
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderCanceled, Symbol: order.Symbol, Order: order.Clone(), Reason: ReasonIOCCanceled, Timestamp: now})
		hlog.Infof("IOC剩余取消, order_id=%s, filled=%s, canceled=%s", order.OrderID, order.ExecutedQuantity, remaining)
		return &OrderResult{Order: order, Result: ResultCanceled, Reason: ReasonIOCCanceled, Trades: trades}

	default:
		// 剩余部分挂盘
		order.IsWorking = true
		st.book.Insert(&BookEntry{
			OrderID:     order.OrderID,
			UserID:      order.UserID,
			Price:       order.Price,
			Quantity:    remaining,
			Timestamp:   order.OrderTime,
			Type:        order.Type,
			TimeInForce: order.TimeInForce,
			Order:       order,
		}, order.Side)
		st.live[order.OrderID] = order
		m.registerOrder(order)
		m.persistNewOrder(order)
		m.emit(engine.Event{Type: engine.EventOrderProcessed, Symbol: order.Symbol, Order: order.Clone(), Timestamp: now})
		hlog.Infof("订单挂盘, order_id=%s, side=%s, price=%s, remaining=%s", order.OrderID, order.Side, order.Price, remaining)
		return &OrderResult{Order: order, Result: ResultResting, Trades: trades}
	}
}

// applyMatches 执行成交计划：逐笔更新双方订单、摘除吃空的挂单、生成成交记录
// 成交价一律取挂单方价格
func (m *MatchEngine) applyMatches(st *workerState, taker *model.Order, plan []PlannedMatch, now int64) []*model.Trade {
	if len(plan) == 0 {
		return nil
	}
	trades := make([]*model.Trade, 0, len(plan))
	for _, pm := range plan {
		maker := pm.Entry.Order
		price := pm.Entry.Price
		qty := pm.Quantity

		trade := m.buildTrade(taker, maker, price, qty, now)

		takerFill := model.Fill{
			TradeID:         trade.TradeID,
			Price:           price,
			Quantity:        qty,
			Commission:      qty.Mul(price).Mul(m.takerRate),
			CommissionAsset: receivingAsset(taker),
			Timestamp:       now,
		}
		makerFill := model.Fill{
			TradeID:         trade.TradeID,
			Price:           price,
			Quantity:        qty,
			Commission:      qty.Mul(price).Mul(m.makerRate),
			CommissionAsset: receivingAsset(maker),
			Timestamp:       now,
		}
		if err := taker.AddFill(takerFill, now); err != nil {
			hlog.Errorf("taker回填异常, order_id=%s, err=%v", taker.OrderID, err)
			break
		}
		if err := maker.AddFill(makerFill, now); err != nil {
			hlog.Errorf("maker回填异常, order_id=%s, err=%v", maker.OrderID, err)
			break
		}

		pm.Entry.Quantity = pm.Entry.Quantity.Sub(qty)
		st.book.removeDepleted(oppositeOf(taker.Side))

		m.persistOrder(maker)
		m.executedTrades.Add(1)
		trades = append(trades, trade)

		m.emit(engine.Event{Type: engine.EventTradeExecuted, Symbol: trade.Symbol, Trade: trade, Timestamp: now})
		if maker.Status == model.StatusFilled {
			m.unregisterLive(st, maker.OrderID)
			m.emit(engine.Event{Type: engine.EventOrderFilled, Symbol: maker.Symbol, Order: maker.Clone(), Timestamp: now})
		}
		hlog.Infof("成交回报, trade_id=%s, symbol=%s, price=%s, quantity=%s", trade.TradeID, trade.Symbol, trade.Price, trade.Quantity)
	}
	m.persistTrades(trades)
	return trades
}

func (m *MatchEngine) buildTrade(taker, maker *model.Order, price, qty decimal.Decimal, now int64) *model.Trade {
	tradeID, err := util.GenerateTradeID(taker.Symbol)
	if err != nil {
		// ID 生成失败极罕见，退化为时间戳拼接保证不中断撮合
		tradeID = fmt.Sprintf("trade-%s-%d", taker.Symbol, time.Now().UnixNano())
	}
	buy, sell := taker, maker
	if taker.Side == model.SideSell {
		buy, sell = maker, taker
	}
	buyRate, sellRate := m.takerRate, m.makerRate
	if taker.Side == model.SideSell {
		buyRate, sellRate = m.makerRate, m.takerRate
	}
	return &model.Trade{
		TradeID:               tradeID,
		Symbol:                taker.Symbol,
		BuyOrderID:            buy.OrderID,
		SellOrderID:           sell.OrderID,
		BuyUserID:             buy.UserID,
		SellUserID:            sell.UserID,
		Price:                 price,
		Quantity:              qty,
		QuoteQuantity:         price.Mul(qty),
		IsBuyerMaker:          taker.Side == model.SideSell,
		BuyerCommission:       qty.Mul(price).Mul(buyRate),
		BuyerCommissionAsset:  buy.BaseAsset,
		SellerCommission:      qty.Mul(price).Mul(sellRate),
		SellerCommissionAsset: sell.QuoteAsset,
		SettlementStatus:      model.SettlementPending,
		EngineID:              m.engineID,
		Timestamp:             now,
	}
}

// receivingAsset 手续费计价资产：买方收 base，卖方收 quote
func receivingAsset(order *model.Order) string {
	if order.Side == model.SideBuy {
		return order.BaseAsset
	}
	return order.QuoteAsset
}

func oppositeOf(s model.OrderSide) model.OrderSide {
	if s == model.SideBuy {
		return model.SideSell
	}
	return model.SideBuy
}

// restoreOrder 恢复一笔工作中订单到盘口（或止损挂起区）
func (m *MatchEngine) restoreOrder(st *workerState, order *model.Order) error {
	if order.Status.IsTerminal() || !order.IsWorking && !order.Type.IsStop() {
		return fmt.Errorf("order %s is not restorable, status=%s", order.OrderID, order.Status)
	}
	if order.Type.IsStop() {
		st.stops[order.OrderID] = order
		st.live[order.OrderID] = order
		m.registerOrder(order)
		m.pendingStops.Add(1)
		return nil
	}
	remaining := order.RemainingQuantity()
	if !remaining.IsPositive() {
		return fmt.Errorf("order %s has no remaining quantity", order.OrderID)
	}
	st.book.Insert(&BookEntry{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		Price:       order.Price,
		Quantity:    remaining,
		Timestamp:   order.OrderTime, // 原始时间戳，重启不丢时间优先级
		Type:        order.Type,
		TimeInForce: order.TimeInForce,
		Order:       order,
	}, order.Side)
	st.live[order.OrderID] = order
	m.registerOrder(order)
	return nil
}

// cancelOrder 撤单，终态订单报错不改状态
func (m *MatchEngine) cancelOrder(st *workerState, orderID, reason string) (*model.Order, error) {
	order, ok := st.live[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !order.IsCancelable() {
		return order, ErrOrderNotCancelable
	}
	now := time.Now().UnixMilli()
	st.book.Remove(orderID)
	if _, isStop := st.stops[orderID]; isStop {
		delete(st.stops, orderID)
		m.pendingStops.Add(-1)
	}
	if err := order.Cancel(reason, now); err != nil {
		return order, ErrOrderNotCancelable
	}
	m.unregisterLive(st, orderID)
	m.persistOrder(order)
	m.emit(engine.Event{Type: engine.EventOrderCanceled, Symbol: order.Symbol, Order: order.Clone(), Reason: reason, Timestamp: now})
	hlog.Infof("订单已撤销, order_id=%s, reason=%s", orderID, reason)
	return order, nil
}

// activateStop 把挂起的止盈止损单转为 MARKET/LIMIT 重新走撮合流程
func (m *MatchEngine) activateStop(st *workerState, orderID string) (*OrderResult, error) {
	order, ok := st.stops[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	delete(st.stops, orderID)
	m.pendingStops.Add(-1)
	m.unregisterLive(st, orderID)

	switch order.Type {
	case model.TypeStopLimit:
		order.Type = model.TypeLimit
	default:
		// STOP_LOSS / TAKE_PROFIT 触发后按市价吃单
		order.Type = model.TypeMarket
		order.Price = decimal.Zero
	}
	hlog.Infof("止损单触发激活, order_id=%s, new_type=%s", orderID, order.Type)
	m.processedOrders.Add(1)
	return m.processOrder(st, order), nil
}

func (m *MatchEngine) unregisterLive(st *workerState, orderID string) {
	delete(st.live, orderID)
	m.unregisterOrder(orderID)
}

// persistNewOrder 新订单首次落库，失败只记日志，内存盘口是撮合期间的权威状态
func (m *MatchEngine) persistNewOrder(order *model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.orders.SaveOrder(ctx, order); err != nil {
		hlog.Errorf("订单落库失败, order_id=%s, err=%v", order.OrderID, err)
	}
}

func (m *MatchEngine) persistOrder(order *model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.orders.UpdateOrder(ctx, order); err != nil {
		hlog.Errorf("订单持久化失败, order_id=%s, err=%v", order.OrderID, err)
	}
}

func (m *MatchEngine) persistTrades(trades []*model.Trade) {
	if len(trades) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.trades.SaveTrades(ctx, trades); err != nil {
		hlog.Errorf("成交持久化失败, symbol=%s, count=%d, err=%v", trades[0].Symbol, len(trades), err)
	}
}

func (m *MatchEngine) emit(ev engine.Event) {
	m.events <- ev
}
