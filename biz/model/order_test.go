package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newLimitOrder(qty, price string) *Order {
	return &Order{
		OrderID:     "o1",
		UserID:      "u1",
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		Side:        SideBuy,
		Type:        TypeLimit,
		TimeInForce: TifGTC,
		Quantity:    dec(qty),
		Price:       dec(price),
		Status:      StatusNew,
		OrderTime:   1700000000000,
	}
}

func TestAddFillPartialThenFull(t *testing.T) {
	o := newLimitOrder("10", "100")

	err := o.AddFill(Fill{TradeID: "t1", Price: dec("99"), Quantity: dec("4")}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyFilled, o.Status)
	require.True(t, o.RemainingQuantity().Equal(dec("6")))
	require.True(t, o.AveragePrice.Equal(dec("99")))

	err = o.AddFill(Fill{TradeID: "t2", Price: dec("100"), Quantity: dec("6")}, 2)
	require.NoError(t, err)
	require.Equal(t, StatusFilled, o.Status)
	require.False(t, o.IsWorking)
	require.True(t, o.RemainingQuantity().IsZero())
	// 均价 = (99*4 + 100*6) / 10
	require.True(t, o.AveragePrice.Equal(dec("99.6")))
	require.Len(t, o.Fills, 2)
}

func TestAddFillOverFill(t *testing.T) {
	o := newLimitOrder("1", "100")
	err := o.AddFill(Fill{Price: dec("100"), Quantity: dec("2")}, 1)
	require.ErrorIs(t, err, ErrOverFill)
	require.Equal(t, StatusNew, o.Status)
	require.Empty(t, o.Fills)
}

func TestAddFillOnTerminal(t *testing.T) {
	o := newLimitOrder("1", "100")
	require.NoError(t, o.Cancel("USER_CANCELED", 1))
	err := o.AddFill(Fill{Price: dec("100"), Quantity: dec("1")}, 2)
	require.ErrorIs(t, err, ErrOrderTerminal)
}

func TestCancelTerminalFails(t *testing.T) {
	o := newLimitOrder("1", "100")
	require.NoError(t, o.AddFill(Fill{Price: dec("100"), Quantity: dec("1")}, 1))
	require.Equal(t, StatusFilled, o.Status)
	require.ErrorIs(t, o.Cancel("USER_CANCELED", 2), ErrOrderTerminal)
	require.Equal(t, StatusFilled, o.Status)
}

func TestCancelKeepsExecutedQuantity(t *testing.T) {
	o := newLimitOrder("10", "100")
	require.NoError(t, o.AddFill(Fill{Price: dec("100"), Quantity: dec("3")}, 1))
	require.NoError(t, o.Cancel("IOC_CANCELED", 2))
	require.Equal(t, StatusCanceled, o.Status)
	require.True(t, o.ExecutedQuantity.Equal(dec("3")))
	require.Equal(t, "IOC_CANCELED", o.Reason)
	require.False(t, o.IsWorking)
}

func TestExpire(t *testing.T) {
	o := newLimitOrder("10", "100")
	require.NoError(t, o.Expire("FOK_NO_FILL", 1))
	require.Equal(t, StatusExpired, o.Status)
	require.True(t, o.Status.IsTerminal())
}

func TestCloneIsIndependent(t *testing.T) {
	o := newLimitOrder("10", "100")
	require.NoError(t, o.AddFill(Fill{TradeID: "t1", Price: dec("100"), Quantity: dec("1")}, 1))
	snap := o.Clone()
	require.NoError(t, o.AddFill(Fill{TradeID: "t2", Price: dec("100"), Quantity: dec("1")}, 2))
	require.Len(t, snap.Fills, 1)
	require.True(t, snap.ExecutedQuantity.Equal(dec("1")))
	require.True(t, o.ExecutedQuantity.Equal(dec("2")))
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{StatusFilled, StatusCanceled, StatusRejected, StatusExpired} {
		require.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []OrderStatus{StatusNew, StatusPartiallyFilled, StatusPendingCancel} {
		require.False(t, s.IsTerminal(), string(s))
	}
}

func TestOrderTypeIsStop(t *testing.T) {
	require.True(t, TypeStopLoss.IsStop())
	require.True(t, TypeStopLimit.IsStop())
	require.True(t, TypeTakeProfit.IsStop())
	require.False(t, TypeLimit.IsStop())
	require.False(t, TypeMarket.IsStop())
}
