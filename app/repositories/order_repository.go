package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
)

// OrderRepository handles database operations for orders and their items.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) q(ctx context.Context) *orm.Query {
	return orm.On(r.db).WithContext(ctx)
}

// Create inserts the order and its items.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	return r.q(ctx).Create(o)
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	if err := r.q(ctx).Preload("Items", orderItems).Where("id = ?", id).First(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// FindByIdempotencyKey returns the order a user already placed under key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID uint, key string) (*models.Order, error) {
	var o models.Order
	err := r.q(ctx).Preload("Items", orderItems).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := r.q(ctx).Preload("Items", orderItems).Order("created_at DESC, id DESC").Get(&orders)
	return orders, err
}

// ListByUser returns the orders placed by userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.q(ctx).Preload("Items", orderItems).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Get(&orders)
	return orders, err
}

// UpdateStatus reports false when no order has that id.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uint, status models.OrderStatus) (bool, error) {
	n, err := r.q(ctx).Model(&models.Order{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status})
	return n == 1, err
}

func orderItems(db *gorm.DB) *gorm.DB { return db.Order("id") }
