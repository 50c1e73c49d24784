package models

import "time"

type ImportJob struct {
	ID              string   `gorm:"type:uuid;primaryKey"`
	LibraryID       string   `gorm:"type:uuid;not null"`
	FileName        string   `gorm:"type:text;not null"`
	Status          string   `gorm:"type:text;not null"`
	Isbns           []string `gorm:"type:jsonb;serializer:json;not null"`
	TotalIsbns      int      `gorm:"not null;default:0"`
	TotalChunks     int      `gorm:"not null;default:0"`
	ProcessedChunks int      `gorm:"not null;default:0"`
	SuccessCount    int      `gorm:"not null;default:0"`
	FailedCount     int      `gorm:"not null;default:0"`
	FailedIsbns     []string `gorm:"type:jsonb;serializer:json;not null"`
	MaxRetries      int      `gorm:"not null"`
	ErrorMessage    *string  `gorm:"type:text"`
	CreatedAt       time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (ImportJob) TableName() string {
	return "isbn_import_jobs"
}
