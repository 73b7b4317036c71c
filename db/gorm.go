package db

import (
	"fmt"

	"trackvault/config"
	"trackvault/logger"
	"trackvault/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Migrate opens a short-lived GORM connection and migrates the schema.
// The repositories themselves stay on database/sql; GORM is only the
// schema owner here.
func Migrate(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	if err := gdb.AutoMigrate(&model.User{}, &model.Track{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close migration connection: %w", err)
	}

	logger.Info("Database schema migrated successfully")
	return nil
}
