package service

import (
	"testing"

	"cex-matching/biz/model"

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

func entry(id, price, qty string, ts int64) *BookEntry {
	return &BookEntry{
		OrderID:   id,
		UserID:    "u-" + id,
		Price:     dec(price),
		Quantity:  dec(qty),
		Timestamp: ts,
		Type:      model.TypeLimit,
		Order:     &model.Order{OrderID: id, Quantity: dec(qty), Price: dec(price), Status: model.StatusNew},
	}
}

func TestBidsOrderedByPriceDesc(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "1", 1), model.SideBuy)
	ob.Insert(entry("b", "102", "1", 2), model.SideBuy)
	ob.Insert(entry("c", "101", "1", 3), model.SideBuy)

	top := ob.Top(model.SideBuy)
	require.Equal(t, "b", top.OrderID)

	depth := ob.Depth(10)
	require.Len(t, depth.Bids, 3)
	require.True(t, depth.Bids[0].Price.Equal(dec("102")))
	require.True(t, depth.Bids[1].Price.Equal(dec("101")))
	require.True(t, depth.Bids[2].Price.Equal(dec("100")))
}

func TestAsksOrderedByPriceAsc(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "105", "1", 1), model.SideSell)
	ob.Insert(entry("b", "103", "1", 2), model.SideSell)
	ob.Insert(entry("c", "104", "1", 3), model.SideSell)

	top := ob.Top(model.SideSell)
	require.Equal(t, "b", top.OrderID)

	depth := ob.Depth(10)
	require.True(t, depth.Asks[0].Price.Equal(dec("103")))
	require.True(t, depth.Asks[2].Price.Equal(dec("105")))
}

func TestSamePriceFIFO(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("first", "100", "1", 10), model.SideSell)
	ob.Insert(entry("second", "100", "1", 20), model.SideSell)
	ob.Insert(entry("third", "100", "1", 30), model.SideSell)

	require.Equal(t, "first", ob.Top(model.SideSell).OrderID)

	plan := ob.PlanMatches(model.SideBuy, dec("100"), false, dec("3"))
	require.Len(t, plan, 3)
	require.Equal(t, "first", plan[0].Entry.OrderID)
	require.Equal(t, "second", plan[1].Entry.OrderID)
	require.Equal(t, "third", plan[2].Entry.OrderID)
}

// 恢复重建时以原始时间戳乱序插入，同价位必须按时间戳落位
func TestInsertOutOfOrderTimestamps(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("late", "100", "1", 30), model.SideSell)
	ob.Insert(entry("early", "100", "1", 10), model.SideSell)
	ob.Insert(entry("middle", "100", "1", 20), model.SideSell)

	plan := ob.PlanMatches(model.SideBuy, dec("100"), false, dec("3"))
	require.Equal(t, "early", plan[0].Entry.OrderID)
	require.Equal(t, "middle", plan[1].Entry.OrderID)
	require.Equal(t, "late", plan[2].Entry.OrderID)
}

func TestRemove(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "1", 1), model.SideBuy)
	ob.Insert(entry("b", "100", "1", 2), model.SideBuy)

	require.True(t, ob.Remove("a"))
	require.False(t, ob.Contains("a"))
	require.True(t, ob.Contains("b"))
	require.Equal(t, 1, ob.Len(model.SideBuy))

	// 不存在的订单是无操作
	require.False(t, ob.Remove("missing"))

	require.True(t, ob.Remove("b"))
	require.Nil(t, ob.Top(model.SideBuy))
	require.Empty(t, ob.Depth(10).Bids)
}

func TestPlanMatchesRespectsLimitPrice(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("cheap", "100", "1", 1), model.SideSell)
	ob.Insert(entry("fair", "101", "1", 2), model.SideSell)
	ob.Insert(entry("expensive", "105", "1", 3), model.SideSell)

	// 买单限价101，105的卖单不可吃
	plan := ob.PlanMatches(model.SideBuy, dec("101"), false, dec("5"))
	require.Len(t, plan, 2)
	require.Equal(t, "cheap", plan[0].Entry.OrderID)
	require.Equal(t, "fair", plan[1].Entry.OrderID)

	// 市价单无价格约束
	plan = ob.PlanMatches(model.SideBuy, decimal.Zero, true, dec("5"))
	require.Len(t, plan, 3)
}

func TestPlanMatchesSellSide(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("high", "102", "1", 1), model.SideBuy)
	ob.Insert(entry("low", "99", "1", 2), model.SideBuy)

	// 卖单限价100，只有102的买单交叉
	plan := ob.PlanMatches(model.SideSell, dec("100"), false, dec("5"))
	require.Len(t, plan, 1)
	require.Equal(t, "high", plan[0].Entry.OrderID)
}

func TestPlanMatchesPartialAtLastLevel(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "3", 1), model.SideSell)

	plan := ob.PlanMatches(model.SideBuy, dec("100"), false, dec("2"))
	require.Len(t, plan, 1)
	require.True(t, plan[0].Quantity.Equal(dec("2")))
}

func TestPlanMatchesIsReadOnly(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "3", 1), model.SideSell)

	_ = ob.PlanMatches(model.SideBuy, dec("100"), false, dec("3"))
	require.Equal(t, 1, ob.Len(model.SideSell))
	require.True(t, ob.Top(model.SideSell).Quantity.Equal(dec("3")))
}

func TestCrossableQuantity(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "2", 1), model.SideSell)
	ob.Insert(entry("b", "101", "3", 2), model.SideSell)
	ob.Insert(entry("c", "110", "5", 3), model.SideSell)

	require.True(t, ob.CrossableQuantity(model.SideBuy, dec("101"), false).Equal(dec("5")))
	require.True(t, ob.CrossableQuantity(model.SideBuy, dec("99"), false).IsZero())
	require.True(t, ob.CrossableQuantity(model.SideBuy, decimal.Zero, true).Equal(dec("10")))
}

func TestDepthAggregatesSamePrice(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "2", 1), model.SideBuy)
	ob.Insert(entry("b", "100", "3", 2), model.SideBuy)

	depth := ob.Depth(10)
	require.Len(t, depth.Bids, 1)
	require.True(t, depth.Bids[0].Quantity.Equal(dec("5")))
	require.Equal(t, 2, depth.Bids[0].Count)
}

func TestDiffSnapshot(t *testing.T) {
	ob := NewOrderBook("BTCUSDT")
	ob.Insert(entry("a", "100", "2", 1), model.SideBuy)

	_, _, last := DiffSnapshot(ob.Depth(20), nil)

	ob.Insert(entry("b", "101", "1", 2), model.SideBuy)
	require.True(t, ob.Remove("a"))

	bidsDelta, asksDelta, next := DiffSnapshot(ob.Depth(20), last)
	require.Equal(t, "1", bidsDelta["101"])
	require.Equal(t, "0", bidsDelta["100"]) // 消失的价位数量置零
	require.Empty(t, asksDelta)
	require.Equal(t, map[string]string{"101": "1"}, next.Bids)

	// 无变化时增量为空
	bidsDelta, asksDelta, _ = DiffSnapshot(ob.Depth(20), next)
	require.Empty(t, bidsDelta)
	require.Empty(t, asksDelta)
}
