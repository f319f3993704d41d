package postgres

import (
	"github.com/yoockh/groupspeak/internal/models"
	"gorm.io/gorm"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Topic{},
		&models.Session{},
		&models.Participant{},
		&models.MergedTranscript{},
		&models.Evaluation{},
		&models.RecordingArchive{},
	)
}
