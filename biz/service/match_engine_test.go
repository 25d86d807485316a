package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cex-matching/biz/engine"
	"cex-matching/biz/model"

	"github.com/stretchr/testify/require"
)

// memStore 内存订单/成交存储，测试用
type memStore struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	trades []*model.Trade
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*model.Order)}
}

func (s *memStore) SaveOrder(_ context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderID] = order.Clone()
	return nil
}

func (s *memStore) UpdateOrder(_ context.Context, order *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderID] = order.Clone()
	return nil
}

func (s *memStore) GetOrder(_ context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

func (s *memStore) ListWorkingOrders(_ context.Context) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var working []*model.Order
	for _, order := range s.orders {
		inBook := (order.Status == model.StatusNew || order.Status == model.StatusPartiallyFilled) && order.IsWorking
		parkedStop := order.Type.IsStop() && order.Status == model.StatusNew
		if inBook || parkedStop {
			working = append(working, order.Clone())
		}
	}
	return working, nil
}

func (s *memStore) SaveTrades(_ context.Context, trades []*model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *memStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func newTestEngine(t *testing.T) (*MatchEngine, *memStore) {
	t.Helper()
	store := newMemStore()
	m := NewMatchEngine("engine-test", store, store, "0.001", "0.001")
	t.Cleanup(func() {
		go func() {
			// 排空事件通道避免 Shutdown 阻塞
			for range m.Events() {
			}
		}()
		m.Shutdown()
	})
	return m, store
}

type orderSpec struct {
	side  model.OrderSide
	typ   model.OrderType
	tif   model.TimeInForce
	qty   string
	price string
	stop  string
	user  string
}

func buildOrder(spec orderSpec) *model.Order {
	o := &model.Order{
		UserID:      spec.user,
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		Side:        spec.side,
		Type:        spec.typ,
		TimeInForce: spec.tif,
		Quantity:    dec(spec.qty),
	}
	if o.UserID == "" {
		o.UserID = "u1"
	}
	if spec.price != "" {
		o.Price = dec(spec.price)
	}
	if spec.stop != "" {
		o.StopPrice = dec(spec.stop)
	}
	return o
}

func mustSubmit(t *testing.T, m *MatchEngine, spec orderSpec) *OrderResult {
	t.Helper()
	result, err := m.Submit(context.Background(), buildOrder(spec))
	require.NoError(t, err)
	return result
}

func TestLimitOrderRestsWhenNoCross(t *testing.T) {
	m, _ := newTestEngine(t)

	result := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})
	require.Equal(t, ResultResting, result.Result)
	require.Equal(t, model.StatusNew, result.Order.Status)
	require.True(t, result.Order.IsWorking)
	require.NotEmpty(t, result.Order.OrderID)

	depth, err := m.Depth(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, depth.Bids, 1)
	require.True(t, depth.Bids[0].Price.Equal(dec("100")))
}

func TestFullMatchAtMakerPrice(t *testing.T) {
	m, store := newTestEngine(t)

	maker := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "2", price: "100", user: "seller"})
	require.Equal(t, ResultResting, maker.Result)

	// 吃单方限价更高，成交价仍取挂单方的100
	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "2", price: "105", user: "buyer"})
	require.Equal(t, ResultFilled, taker.Result)
	require.Equal(t, model.StatusFilled, taker.Order.Status)
	require.Len(t, taker.Trades, 1)

	trade := taker.Trades[0]
	require.True(t, trade.Price.Equal(dec("100")))
	require.True(t, trade.Quantity.Equal(dec("2")))
	require.False(t, trade.IsBuyerMaker) // 买方是吃单方
	require.Equal(t, "buyer", trade.BuyUserID)
	require.Equal(t, "seller", trade.SellUserID)

	// 手续费 = 数量 × 成交价 × 0.001，买方收BTC，卖方收USDT
	require.True(t, trade.BuyerCommission.Equal(dec("0.2")))
	require.Equal(t, "BTC", trade.BuyerCommissionAsset)
	require.True(t, trade.SellerCommission.Equal(dec("0.2")))
	require.Equal(t, "USDT", trade.SellerCommissionAsset)

	// 挂单方也到终态
	stored, err := store.GetOrder(context.Background(), maker.Order.OrderID)
	require.NoError(t, err)
	require.Equal(t, model.StatusFilled, stored.Status)

	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Asks)
	require.Empty(t, depth.Bids)
}

func TestPartialFillKeepsMakerWorking(t *testing.T) {
	m, store := newTestEngine(t)

	maker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "5", price: "100"})
	taker := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeMarket, qty: "2"})

	require.Equal(t, ResultFilled, taker.Result)
	require.Len(t, taker.Trades, 1)
	require.True(t, taker.Trades[0].IsBuyerMaker) // 卖方吃单，买方是挂单方

	stored, _ := store.GetOrder(context.Background(), maker.Order.OrderID)
	require.Equal(t, model.StatusPartiallyFilled, stored.Status)
	require.True(t, stored.IsWorking)
	require.True(t, stored.ExecutedQuantity.Equal(dec("2")))
	require.True(t, stored.RemainingQuantity().Equal(dec("3")))

	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Len(t, depth.Bids, 1)
	require.True(t, depth.Bids[0].Quantity.Equal(dec("3")))
}

func TestMarketOrderInsufficientLiquidity(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "3", price: "100"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeMarket, qty: "5"})
	require.Equal(t, ResultCanceledNoLiquidity, taker.Result)
	require.Equal(t, ReasonInsufficientLiquidity, taker.Reason)
	require.Equal(t, model.StatusCanceled, taker.Order.Status)
	require.True(t, taker.Order.ExecutedQuantity.Equal(dec("3")))
	require.Len(t, taker.Trades, 1)

	// 市价单永不挂盘
	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Bids)
	require.Empty(t, depth.Asks)
}

func TestMarketOrderOnEmptyBook(t *testing.T) {
	m, _ := newTestEngine(t)

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeMarket, qty: "1"})
	require.Equal(t, ResultCanceledNoLiquidity, taker.Result)
	require.True(t, taker.Order.ExecutedQuantity.IsZero())
	require.Empty(t, taker.Trades)
}

func TestTimePriorityAtSamePrice(t *testing.T) {
	m, store := newTestEngine(t)

	first := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100", user: "first"})
	second := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100", user: "second"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})
	require.Equal(t, ResultFilled, taker.Result)
	require.Equal(t, first.Order.OrderID, taker.Trades[0].SellOrderID)

	storedFirst, _ := store.GetOrder(context.Background(), first.Order.OrderID)
	storedSecond, _ := store.GetOrder(context.Background(), second.Order.OrderID)
	require.Equal(t, model.StatusFilled, storedFirst.Status)
	require.Equal(t, model.StatusNew, storedSecond.Status)
}

func TestPricePriorityAcrossLevels(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "101", user: "worse"})
	better := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100", user: "better"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "105"})
	require.Equal(t, ResultFilled, taker.Result)
	require.Equal(t, better.Order.OrderID, taker.Trades[0].SellOrderID)
	require.True(t, taker.Trades[0].Price.Equal(dec("100")))
}

func TestTakerSweepsMultipleLevels(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"})
	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "2", price: "101"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "3", price: "101"})
	require.Equal(t, ResultFilled, taker.Result)
	require.Len(t, taker.Trades, 2)
	require.True(t, taker.Trades[0].Price.Equal(dec("100")))
	require.True(t, taker.Trades[1].Price.Equal(dec("101")))
	require.True(t, taker.Order.ExecutedQuantity.Equal(dec("3")))
	require.True(t, taker.Order.CumulativeQuote.Equal(dec("302"))) // 100*1 + 101*2
}

func TestIOCCancelsRemainder(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "2", price: "100"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, tif: model.TifIOC, qty: "5", price: "100"})
	require.Equal(t, ResultCanceled, taker.Result)
	require.Equal(t, ReasonIOCCanceled, taker.Reason)
	require.Equal(t, model.StatusCanceled, taker.Order.Status)
	require.True(t, taker.Order.ExecutedQuantity.Equal(dec("2")))

	// 剩余部分不挂盘
	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Bids)
}

func TestFOKExpiresWhenNotFullyFillable(t *testing.T) {
	m, store := newTestEngine(t)

	maker := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "3", price: "100"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, tif: model.TifFOK, qty: "5", price: "100"})
	require.Equal(t, ResultCanceled, taker.Result)
	require.Equal(t, ReasonFOKNoFill, taker.Reason)
	require.Equal(t, model.StatusExpired, taker.Order.Status)
	require.True(t, taker.Order.ExecutedQuantity.IsZero())
	require.Empty(t, taker.Trades)

	// 对手盘完全不动
	stored, _ := store.GetOrder(context.Background(), maker.Order.OrderID)
	require.Equal(t, model.StatusNew, stored.Status)
	require.Equal(t, 0, store.tradeCount())
}

func TestFOKFillsWhenFullyFillable(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "5", price: "100"})

	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, tif: model.TifFOK, qty: "5", price: "100"})
	require.Equal(t, ResultFilled, taker.Result)
	require.Equal(t, model.StatusFilled, taker.Order.Status)
}

func TestValidationRejects(t *testing.T) {
	m, _ := newTestEngine(t)

	cases := []struct {
		name   string
		spec   orderSpec
		reason string
	}{
		{"zero quantity", orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "0", price: "100"}, "Invalid quantity"},
		{"negative quantity", orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "-1", price: "100"}, "Invalid quantity"},
		{"limit without price", orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1"}, "Invalid price for limit order"},
		{"stop limit without stop price", orderSpec{side: model.SideBuy, typ: model.TypeStopLimit, qty: "1", price: "100"}, "Invalid stop price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := mustSubmit(t, m, tc.spec)
			require.Equal(t, ResultRejected, result.Result)
			require.Equal(t, tc.reason, result.Reason)
			require.Equal(t, model.StatusRejected, result.Order.Status)
		})
	}

	// 缺少必填字段
	result, err := m.Submit(context.Background(), &model.Order{Symbol: "BTCUSDT", Quantity: dec("1")})
	require.NoError(t, err)
	require.Equal(t, ResultRejected, result.Result)
	require.Equal(t, "Missing required order fields", result.Reason)
}

func TestRejectedOrderNeverTouchesBook(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "0", price: "100"})
	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Bids)
	require.Empty(t, depth.Asks)
}

func TestCancelRestingOrder(t *testing.T) {
	m, store := newTestEngine(t)

	resting := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})

	order, err := m.Cancel(context.Background(), resting.Order.OrderID, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusCanceled, order.Status)
	require.Equal(t, ReasonUserCanceled, order.Reason)
	require.False(t, order.IsWorking)

	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Bids)

	stored, _ := store.GetOrder(context.Background(), resting.Order.OrderID)
	require.Equal(t, model.StatusCanceled, stored.Status)
}

func TestCancelUnknownOrder(t *testing.T) {
	m, _ := newTestEngine(t)

	_, err := m.Cancel(context.Background(), "no-such-order", "")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelTerminalOrder(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"})
	taker := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})
	require.Equal(t, ResultFilled, taker.Result)

	order, err := m.Cancel(context.Background(), taker.Order.OrderID, "")
	require.ErrorIs(t, err, ErrOrderNotCancelable)
	// 状态不被修改
	require.Equal(t, model.StatusFilled, order.Status)
}

func TestCancelIsIdempotentRejection(t *testing.T) {
	m, _ := newTestEngine(t)

	resting := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})
	_, err := m.Cancel(context.Background(), resting.Order.OrderID, "")
	require.NoError(t, err)

	// 二次撤单：订单已终态
	_, err = m.Cancel(context.Background(), resting.Order.OrderID, "")
	require.ErrorIs(t, err, ErrOrderNotCancelable)
}

func TestStopOrderParksUntilActivated(t *testing.T) {
	m, store := newTestEngine(t)

	stop := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeStopLimit, qty: "1", price: "104", stop: "105"})
	require.Equal(t, ResultResting, stop.Result)
	require.Equal(t, model.StatusNew, stop.Order.Status)
	require.False(t, stop.Order.IsWorking)

	// 挂起的止损单不进盘口
	depth, _ := m.Depth(context.Background(), "BTCUSDT", 10)
	require.Empty(t, depth.Bids)
	require.Equal(t, 1, m.Health().PendingStops)

	result, err := m.ActivateStopOrder(context.Background(), stop.Order.OrderID)
	require.NoError(t, err)
	require.Equal(t, ResultResting, result.Result)
	require.Equal(t, model.TypeLimit, result.Order.Type)

	depth, _ = m.Depth(context.Background(), "BTCUSDT", 10)
	require.Len(t, depth.Bids, 1)
	require.True(t, depth.Bids[0].Price.Equal(dec("104")))
	require.Equal(t, 0, m.Health().PendingStops)

	stored, _ := store.GetOrder(context.Background(), stop.Order.OrderID)
	require.True(t, stored.IsWorking)
}

func TestStopLossActivatesAsMarket(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "2", price: "95"})
	stop := mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeStopLoss, qty: "2", stop: "96"})
	require.Equal(t, ResultResting, stop.Result)

	result, err := m.ActivateStopOrder(context.Background(), stop.Order.OrderID)
	require.NoError(t, err)
	require.Equal(t, ResultFilled, result.Result)
	require.Equal(t, model.TypeMarket, result.Order.Type)
	require.True(t, result.Trades[0].Price.Equal(dec("95")))
}

func TestCancelPendingStopOrder(t *testing.T) {
	m, _ := newTestEngine(t)

	stop := mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeStopLimit, qty: "1", price: "104", stop: "105"})

	order, err := m.Cancel(context.Background(), stop.Order.OrderID, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusCanceled, order.Status)
	require.Equal(t, 0, m.Health().PendingStops)

	_, err = m.ActivateStopOrder(context.Background(), stop.Order.OrderID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRecoverRebuildsBookWithTimePriority(t *testing.T) {
	store := newMemStore()
	early := buildOrder(orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100", user: "early"})
	early.OrderID = "order-early"
	early.OrderTime = 1000
	early.Status = model.StatusNew
	early.IsWorking = true

	late := buildOrder(orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "2", price: "100", user: "late"})
	late.OrderID = "order-late"
	late.OrderTime = 2000
	late.Status = model.StatusPartiallyFilled
	late.IsWorking = true
	require.NoError(t, late.AddFill(model.Fill{Price: dec("100"), Quantity: dec("1")}, 1500))

	done := buildOrder(orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"})
	done.OrderID = "order-done"
	done.Status = model.StatusFilled

	require.NoError(t, store.SaveOrder(context.Background(), early))
	require.NoError(t, store.SaveOrder(context.Background(), late))
	require.NoError(t, store.SaveOrder(context.Background(), done))

	m := NewMatchEngine("engine-test", store, store, "", "")
	t.Cleanup(func() {
		go func() {
			for range m.Events() {
			}
		}()
		m.Shutdown()
	})
	require.NoError(t, m.Recover(context.Background()))

	// 只恢复工作中订单，数量取剩余值
	depth, err := m.Depth(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 1)
	require.True(t, depth.Asks[0].Quantity.Equal(dec("2"))) // 1 + (2-1)
	require.Equal(t, 2, depth.Asks[0].Count)

	// 原始时间优先级保持：先成交 order-early
	taker, err := m.Submit(context.Background(), buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"}))
	require.NoError(t, err)
	require.Equal(t, ResultFilled, taker.Result)
	require.Equal(t, "order-early", taker.Trades[0].SellOrderID)

	// 恢复的订单可正常撤单
	order, err := m.Cancel(context.Background(), "order-late", "")
	require.NoError(t, err)
	require.Equal(t, model.StatusCanceled, order.Status)
}

// 挂起止损单落库时 isWorking=false，重启恢复必须把它们捞回挂起区，
// 否则既无法触发也无法撤单
func TestRecoverRestoresPendingStops(t *testing.T) {
	store := newMemStore()
	first := NewMatchEngine("engine-a", store, store, "", "")
	go func() {
		for range first.Events() {
		}
	}()

	stopLimit, err := first.Submit(context.Background(), buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeStopLimit, qty: "1", price: "104", stop: "105"}))
	require.NoError(t, err)
	require.Equal(t, ResultResting, stopLimit.Result)
	stopLoss, err := first.Submit(context.Background(), buildOrder(orderSpec{side: model.SideSell, typ: model.TypeStopLoss, qty: "1", stop: "95"}))
	require.NoError(t, err)
	first.Shutdown()

	second := NewMatchEngine("engine-b", store, store, "", "")
	t.Cleanup(func() {
		go func() {
			for range second.Events() {
			}
		}()
		second.Shutdown()
	})
	require.NoError(t, second.Recover(context.Background()))
	require.Equal(t, 2, second.Health().PendingStops)

	// 恢复后依旧挂起，不进可撮合盘口
	depth, err := second.Depth(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	require.Empty(t, depth.Bids)
	require.Empty(t, depth.Asks)

	// 恢复后可正常触发激活
	activated, err := second.ActivateStopOrder(context.Background(), stopLimit.Order.OrderID)
	require.NoError(t, err)
	require.Equal(t, ResultResting, activated.Result)
	require.Equal(t, model.TypeLimit, activated.Order.Type)

	// 恢复后可正常撤单
	canceled, err := second.Cancel(context.Background(), stopLoss.Order.OrderID, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusCanceled, canceled.Status)
	require.Equal(t, 0, second.Health().PendingStops)
}

func TestHealthCounters(t *testing.T) {
	m, _ := newTestEngine(t)

	mustSubmit(t, m, orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"})
	mustSubmit(t, m, orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})

	status := m.Health()
	require.True(t, status.Running)
	require.EqualValues(t, 2, status.ProcessedOrders)
	require.EqualValues(t, 1, status.ExecutedTrades)
	require.Equal(t, 1, status.ActiveBooks)
}

// 下单与停机并发时不允许向已关闭队列发送：
// 每笔提交要么正常得到结果，要么返回引擎已停止，绝不 panic
func TestSubmitRacingShutdown(t *testing.T) {
	m, _ := newTestEngine(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				order := buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: fmt.Sprintf("%d", 50+g)})
				if _, err := m.Submit(context.Background(), order); err != nil {
					if !errors.Is(err, ErrEngineStopped) {
						t.Errorf("unexpected submit error: %v", err)
					}
					return
				}
			}
		}(g)
	}

	time.Sleep(time.Millisecond)
	m.Shutdown()
	wg.Wait()

	_, err := m.Submit(context.Background(), buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"}))
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestSymbolsAreIsolated(t *testing.T) {
	m, _ := newTestEngine(t)

	btc := buildOrder(orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"})
	eth := buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"})
	eth.Symbol = "ETHUSDT"
	eth.BaseAsset = "ETH"

	_, err := m.Submit(context.Background(), btc)
	require.NoError(t, err)
	result, err := m.Submit(context.Background(), eth)
	require.NoError(t, err)

	// 不同交易对不互相成交
	require.Equal(t, ResultResting, result.Result)
	require.Equal(t, 2, m.Health().ActiveBooks)
}

func TestEventOrderingPerSymbol(t *testing.T) {
	store := newMemStore()
	m := NewMatchEngine("engine-test", store, store, "", "")

	_, err := m.Submit(context.Background(), buildOrder(orderSpec{side: model.SideSell, typ: model.TypeLimit, qty: "1", price: "100"}))
	require.NoError(t, err)
	_, err = m.Submit(context.Background(), buildOrder(orderSpec{side: model.SideBuy, typ: model.TypeLimit, qty: "1", price: "100"}))
	require.NoError(t, err)
	m.Shutdown()

	var events []engine.Event
	for ev := range m.Events() {
		events = append(events, ev)
	}
	// 挂盘 → 成交 → 挂单方完成 → 吃单方完成
	require.Len(t, events, 4)
	require.Equal(t, engine.EventOrderProcessed, events[0].Type)
	require.Equal(t, engine.EventTradeExecuted, events[1].Type)
	require.Equal(t, engine.EventOrderFilled, events[2].Type)
	require.Equal(t, engine.EventOrderFilled, events[3].Type)
	// 事件携带的是提交时刻的快照
	require.Equal(t, model.StatusNew, events[0].Order.Status)
	require.Equal(t, model.StatusFilled, events[2].Order.Status)
}
