package pg

import (
	"context"
	"errors"

	"cex-matching/biz/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepo 订单仓储，实现撮合引擎的 OrderStore
type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{db: GormDB}
}

func NewOrderRepoWithDB(db *gorm.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// SaveOrder 新订单落库，主键冲突时整行覆盖
// 止损单激活后会带原主键重新进入撮合流程，因此按 upsert 处理
func (r *OrderRepo) SaveOrder(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(order).Error
}

// UpdateOrder 整行更新
func (r *OrderRepo) UpdateOrder(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// GetOrder 查询单个订单，不存在返回 nil
func (r *OrderRepo) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListWorkingOrders 启动恢复用：盘口挂单加挂起未触发的止盈止损单，按下单时间升序
// 挂起止损单落库时 is_working=false，须按类型单独捞出，否则重启后丢失
func (r *OrderRepo) ListWorkingOrders(ctx context.Context) ([]*model.Order, error) {
	stopTypes := []model.OrderType{model.TypeStopLoss, model.TypeStopLimit, model.TypeTakeProfit}
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("(status IN ? AND is_working = ?) OR (type IN ? AND status = ?)",
			[]model.OrderStatus{model.StatusNew, model.StatusPartiallyFilled}, true,
			stopTypes, model.StatusNew).
		Order("order_time asc").
		Find(&orders).Error
	return orders, err
}

// ListUserOrders 查询订单列表
func (r *OrderRepo) ListUserOrders(ctx context.Context, userID, symbol string, status model.OrderStatus, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	db := r.db.WithContext(ctx).Model(&model.Order{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if symbol != "" {
		db = db.Where("symbol = ?", symbol)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var orders []model.Order
	err := db.Order("order_time desc").Limit(limit).Find(&orders).Error
	return orders, err
}
