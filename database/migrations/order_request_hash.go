package migrations

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/migration"
)

func init() {
	migration.Register("20260301000000_add_order_request_hash", &AddOrderRequestHash{})
}

// AddOrderRequestHash adds the cart fingerprint checked when an
// idempotency key is reused. Databases created after the column joined the
// model already have it.
type AddOrderRequestHash struct{}

func (m *AddOrderRequestHash) Up(db *gorm.DB) error {
	if db.Migrator().HasColumn(&models.Order{}, "RequestHash") {
		return nil
	}
	return db.Migrator().AddColumn(&models.Order{}, "RequestHash")
}

func (m *AddOrderRequestHash) Down(db *gorm.DB) error {
	if !db.Migrator().HasColumn(&models.Order{}, "RequestHash") {
		return nil
	}
	return db.Migrator().DropColumn(&models.Order{}, "RequestHash")
}
