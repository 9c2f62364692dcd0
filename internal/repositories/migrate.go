package repositories

import (
	"gorm.io/gorm"

	"circulation/internal/models"
)

// Migrate creates the tables and the partial index that enforces at most one
// active loan per item. Both Postgres and SQLite accept the index definition.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_loans_one_active_per_item ON loans (item_id) WHERE status = 'active'`).Error
}
