package db

import (
	"fmt"

	"github.com/osobot/oso/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models backing the message store.
func AllModels() []interface{} {
	return []interface{}{
		&models.Msg{},
		&models.MsgImage{},
	}
}

// AutoMigrate creates or updates the message store tables, including the
// (sender, created_at) index used by per-sender history queries.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
