package db

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration, leaves first.
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.Agent{},
		&models.AgentLink{},
		&models.Message{},
		&models.MessageRecipient{},
		&models.HumanApproval{},
		&models.TaskLink{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
