package model

import (
	"database/sql"
	"time"
)

// Track represents an uploaded audio track. FilePath is the storage object
// name; the public URL is derived from it by the handlers.
type Track struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    int64          `json:"userId" gorm:"not null;index"`
	Title     string         `json:"title" gorm:"type:varchar(255);not null"`
	Artist    string         `json:"artist" gorm:"type:varchar(255);not null"`
	Genre     sql.NullString `json:"-" gorm:"type:varchar(100)"`
	Year      sql.NullInt32  `json:"-"`
	Album     sql.NullString `json:"-" gorm:"type:varchar(255)"`
	FilePath  string         `json:"-" gorm:"type:varchar(767);not null"`
	Explicit  bool           `json:"explicit" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName sets the tracks table name for GORM migration.
func (Track) TableName() string { return "tracks" }
