package service

import "sync"

// OrderBookManager 引擎实例持有的 symbol -> 盘口集合
// 盘口的读写发生在各自的撮合线程内，这里只保护映射本身
type OrderBookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

func NewOrderBookManager() *OrderBookManager {
	return &OrderBookManager{
		books: make(map[string]*OrderBook),
	}
}

func (m *OrderBookManager) GetOrCreate(symbol string) *OrderBook {
	m.mu.RLock()
	book, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return book
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok = m.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	m.books[symbol] = book
	return book
}

func (m *OrderBookManager) Get(symbol string) (*OrderBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[symbol]
	return book, ok
}

func (m *OrderBookManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books)
}
