package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is an uploaded PDF. The row is created only after all of its
// chunks are durably indexed, so a row existing means the content is
// searchable. FilePath points at the transient upload and is gone from disk
// by the time the row exists.
type Document struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ChatID      string    `gorm:"size:36;not null;index" json:"chat_id"`
	UserID      string    `gorm:"size:36;not null;index" json:"user_id"`
	Filename    string    `gorm:"size:256;not null" json:"filename"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	FilePath    string    `gorm:"size:512" json:"-"`
	FileSize    int64     `json:"file_size"`
	Title       string    `gorm:"size:256" json:"title"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
