package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/moments-social/moments-backend/internal/domain"
)

// Run synchronizes the schema with the domain models
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Post{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
