package model

import (
	"database/sql"
	"time"
)

// User represents a registered account.
type User struct {
	ID           int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string         `json:"-" gorm:"type:varchar(255);not null"` // never exposed in API responses
	Name         string         `json:"name" gorm:"type:varchar(100);not null"`
	Bio          sql.NullString `json:"-" gorm:"type:text"`
	AvatarPath   sql.NullString `json:"-" gorm:"type:varchar(767)"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// TableName sets the users table name for GORM migration.
func (User) TableName() string { return "users" }
