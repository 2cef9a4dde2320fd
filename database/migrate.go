package database

import (
	"fmt"

	"debateserver/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrateDB はユーザー、ディベート、賭けのテーブルを作成・更新する
func AutoMigrateDB(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.User{}, &models.Debate{}, &models.Bet{}); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	logger.Info("User, Debate and Bet tables migrated")
	return nil
}
