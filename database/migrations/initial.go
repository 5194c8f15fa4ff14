package migrations

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/migration"
	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
)

func init() {
	migration.Register("20260101000000_create_users_table", &CreateUsersTable{})
	migration.Register("20260101000001_create_products_table", &CreateProductsTable{})
	migration.Register("20260101000002_create_orders_table", &CreateOrdersTable{})
	migration.Register("20260101000003_create_failed_jobs_table", &CreateFailedJobsTable{})
}

type CreateUsersTable struct{}

func (m *CreateUsersTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{})
}

func (m *CreateUsersTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.User{})
}

// CreateProductsTable creates products and their variants together; a
// variant never exists without its product.
type CreateProductsTable struct{}

func (m *CreateProductsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&models.Product{}, &models.Variant{})
}

func (m *CreateProductsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.Variant{}, &models.Product{})
}

type CreateOrdersTable struct{}

// Up creates orders and their items. SQL Server treats NULLs as equal in a
// unique index, so there the idempotency index is rebuilt filtered to rows
// that carry a key.
func (m *CreateOrdersTable) Up(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}); err != nil {
		return err
	}
	if db.Dialector.Name() != "sqlserver" {
		return nil
	}
	if err := db.Migrator().DropIndex(&models.Order{}, "idx_order_idempotency"); err != nil {
		return err
	}
	return db.Exec("CREATE UNIQUE INDEX idx_order_idempotency ON orders (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL").Error
}

func (m *CreateOrdersTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.OrderItem{}, &models.Order{})
}

type CreateFailedJobsTable struct{}

func (m *CreateFailedJobsTable) Up(db *gorm.DB) error {
	return db.AutoMigrate(&queue.FailedJobRecord{})
}

func (m *CreateFailedJobsTable) Down(db *gorm.DB) error {
	return db.Migrator().DropTable(&queue.FailedJobRecord{})
}
