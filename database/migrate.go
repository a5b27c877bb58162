package database

import (
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/utils"
	"gorm.io/gorm"
)

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Campaign{},
		&models.Participant{},
		&models.Bid{},
		&models.Vote{},
		&models.Message{},
		&models.Notification{},
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		utils.ErrorLogger.Printf("AutoMigrate failed: %v", err)
		return err
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
