package service

import (
	"cex-matching/biz/model"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

// BookEntry 盘口挂单条目，是在线订单的视图
// Quantity 为剩余可成交数量，成交进度以 Order 为准
type BookEntry struct {
	OrderID     string
	UserID      string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   int64
	Type        model.OrderType
	TimeInForce model.TimeInForce
	Order       *model.Order
}

// priceLevel 同一价位的挂单按时间先后排队，严格 FIFO
type priceLevel struct {
	price decimal.Decimal
	queue []*BookEntry
}

// PriceLevelView 深度快照中的聚合价位，只读副本
type PriceLevelView struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Count    int             `json:"count"`
}

// DepthSnapshot 盘口深度快照
type DepthSnapshot struct {
	Symbol string           `json:"symbol"`
	Bids   []PriceLevelView `json:"bids"`
	Asks   []PriceLevelView `json:"asks"`
}

// OrderBook 单交易对盘口
// 买盘价格降序、卖盘价格升序，同价位按挂单时间先后
// 仅允许该 symbol 的撮合线程访问，不加锁
type OrderBook struct {
	symbol string
	bids   *skiplist.SkipList
	asks   *skiplist.SkipList
	index  map[string]model.OrderSide // orderID -> 所在盘口方向
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   skiplist.New(bidComparator{}),
		asks:   skiplist.New(askComparator{}),
		index:  make(map[string]model.OrderSide),
	}
}

func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) side(s model.OrderSide) *skiplist.SkipList {
	if s == model.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Len 指定方向上的挂单条目数
func (ob *OrderBook) Len(s model.OrderSide) int {
	n := 0
	for elem := ob.side(s).Front(); elem != nil; elem = elem.Next() {
		n += len(elem.Value.(*priceLevel).queue)
	}
	return n
}

// Insert 插入挂单，价优先、同价按时间戳先后
// 恢复重建时会以原始时间戳乱序插入，因此同价位内按时间戳寻位而非简单追加
func (ob *OrderBook) Insert(entry *BookEntry, s model.OrderSide) {
	book := ob.side(s)
	if elem := book.Get(entry.Price); elem != nil {
		level := elem.Value.(*priceLevel)
		pos := len(level.queue)
		for pos > 0 && level.queue[pos-1].Timestamp > entry.Timestamp {
			pos--
		}
		level.queue = append(level.queue, nil)
		copy(level.queue[pos+1:], level.queue[pos:])
		level.queue[pos] = entry
	} else {
		book.Set(entry.Price, &priceLevel{price: entry.Price, queue: []*BookEntry{entry}})
	}
	ob.index[entry.OrderID] = s
}

// Remove 按订单ID摘除挂单，订单不在盘口时为无操作（返回 false）
func (ob *OrderBook) Remove(orderID string) bool {
	s, ok := ob.index[orderID]
	if !ok {
		return false
	}
	book := ob.side(s)
	for elem := book.Front(); elem != nil; elem = elem.Next() {
		level := elem.Value.(*priceLevel)
		for i, e := range level.queue {
			if e.OrderID == orderID {
				level.queue = append(level.queue[:i], level.queue[i+1:]...)
				if len(level.queue) == 0 {
					book.Remove(elem.Key())
				}
				delete(ob.index, orderID)
				return true
			}
		}
	}
	delete(ob.index, orderID)
	return false
}

// Contains 订单当前是否挂在盘口上
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// Top 指定方向上价格最优、时间最早的挂单，空盘口返回 nil
func (ob *OrderBook) Top(s model.OrderSide) *BookEntry {
	front := ob.side(s).Front()
	if front == nil {
		return nil
	}
	level := front.Value.(*priceLevel)
	return level.queue[0]
}

// removeDepleted 成交后摘除数量归零的盘口头部挂单
func (ob *OrderBook) removeDepleted(s model.OrderSide) {
	book := ob.side(s)
	front := book.Front()
	if front == nil {
		return
	}
	level := front.Value.(*priceLevel)
	if len(level.queue) > 0 && !level.queue[0].Quantity.IsPositive() {
		delete(ob.index, level.queue[0].OrderID)
		level.queue = level.queue[1:]
		if len(level.queue) == 0 {
			book.Remove(front.Key())
		}
	}
}

// PlannedMatch 撮合计划中的一笔预期成交
type PlannedMatch struct {
	Entry    *BookEntry
	Quantity decimal.Decimal
}

// PlanMatches 按价格时间优先走对手盘生成成交计划，不做任何修改
// 先规划后落账，撮合过程中的异常不会留下改了一半的盘口
func (ob *OrderBook) PlanMatches(taker model.OrderSide, limit decimal.Decimal, market bool, remaining decimal.Decimal) []PlannedMatch {
	opposite := model.SideSell
	if taker == model.SideSell {
		opposite = model.SideBuy
	}
	var plan []PlannedMatch
	for elem := ob.side(opposite).Front(); elem != nil && remaining.IsPositive(); elem = elem.Next() {
		level := elem.Value.(*priceLevel)
		if !market {
			// 限价单只在价格交叉时吃单
			if taker == model.SideBuy && level.price.GreaterThan(limit) {
				break
			}
			if taker == model.SideSell && level.price.LessThan(limit) {
				break
			}
		}
		for _, e := range level.queue {
			if !remaining.IsPositive() {
				break
			}
			qty := decimal.Min(remaining, e.Quantity)
			plan = append(plan, PlannedMatch{Entry: e, Quantity: qty})
			remaining = remaining.Sub(qty)
		}
	}
	return plan
}

// CrossableQuantity 在限价 limit 内对手盘可吃到的总量（FOK 预检用，只读）
// market 为 true 时不做价格约束
func (ob *OrderBook) CrossableQuantity(taker model.OrderSide, limit decimal.Decimal, market bool) decimal.Decimal {
	opposite := model.SideSell
	if taker == model.SideSell {
		opposite = model.SideBuy
	}
	total := decimal.Zero
	for elem := ob.side(opposite).Front(); elem != nil; elem = elem.Next() {
		level := elem.Value.(*priceLevel)
		if !market {
			if taker == model.SideBuy && level.price.GreaterThan(limit) {
				break
			}
			if taker == model.SideSell && level.price.LessThan(limit) {
				break
			}
		}
		for _, e := range level.queue {
			total = total.Add(e.Quantity)
		}
	}
	return total
}

// Depth 返回双边前 depth 个聚合价位，只读副本，不暴露内部结构
func (ob *OrderBook) Depth(depth int) *DepthSnapshot {
	return &DepthSnapshot{
		Symbol: ob.symbol,
		Bids:   topLevels(ob.bids, depth),
		Asks:   topLevels(ob.asks, depth),
	}
}

func topLevels(book *skiplist.SkipList, depth int) []PriceLevelView {
	levels := make([]PriceLevelView, 0, depth)
	for elem := book.Front(); elem != nil && len(levels) < depth; elem = elem.Next() {
		level := elem.Value.(*priceLevel)
		total := decimal.Zero
		for _, e := range level.queue {
			total = total.Add(e.Quantity)
		}
		levels = append(levels, PriceLevelView{
			Price:    level.price,
			Quantity: total,
			Count:    len(level.queue),
		})
	}
	return levels
}

// LevelMaps 价位 -> 数量映射，深度增量计算用
func (s *DepthSnapshot) LevelMaps() (bids, asks map[string]string) {
	bids = make(map[string]string, len(s.Bids))
	for _, lv := range s.Bids {
		bids[lv.Price.String()] = lv.Quantity.String()
	}
	asks = make(map[string]string, len(s.Asks))
	for _, lv := range s.Asks {
		asks[lv.Price.String()] = lv.Quantity.String()
	}
	return bids, asks
}

// OrderBookSnapshot 上一次推送的盘口镜像
type OrderBookSnapshot struct {
	Bids map[string]string // price -> quantity
	Asks map[string]string
}

// DiffSnapshot 计算相对上次推送的价位变化，消失的价位数量置 "0"
// 入参是只读快照，可在撮合线程之外安全调用
func DiffSnapshot(curr *DepthSnapshot, last *OrderBookSnapshot) (bidsDelta, asksDelta map[string]string, next *OrderBookSnapshot) {
	currBids, currAsks := curr.LevelMaps()
	var lastBids, lastAsks map[string]string
	if last != nil {
		lastBids, lastAsks = last.Bids, last.Asks
	}
	next = &OrderBookSnapshot{Bids: currBids, Asks: currAsks}
	return calculateDelta(currBids, lastBids), calculateDelta(currAsks, lastAsks), next
}

func calculateDelta(curr, last map[string]string) map[string]string {
	delta := map[string]string{}
	for price, qty := range curr {
		if last == nil || last[price] != qty {
			delta[price] = qty
		}
	}
	for price := range last {
		if _, ok := curr[price]; !ok {
			delta[price] = "0"
		}
	}
	return delta
}

// 跳表价格比较器，买盘价格高者优先
// CalcScore 必须与 Compare 的排序方向一致，降序侧取负值
type bidComparator struct{}

func (bidComparator) Compare(l, r interface{}) int {
	return r.(decimal.Decimal).Cmp(l.(decimal.Decimal))
}

func (bidComparator) CalcScore(key interface{}) float64 {
	f, _ := key.(decimal.Decimal).Float64()
	return -f
}

// 卖盘价格低者优先
type askComparator struct{}

func (askComparator) Compare(l, r interface{}) int {
	return l.(decimal.Decimal).Cmp(r.(decimal.Decimal))
}

func (askComparator) CalcScore(key interface{}) float64 {
	f, _ := key.(decimal.Decimal).Float64()
	return f
}
