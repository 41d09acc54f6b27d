package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one turn in a chat. DocumentIDs is a comma-joined list of the
// document ids the turn was scoped to.
type Message struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ChatID      string    `gorm:"size:36;not null;index" json:"chat_id"`
	UserID      string    `gorm:"size:36;not null;index" json:"user_id"`
	Role        string    `gorm:"size:16;not null;index" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	DocumentIDs string    `gorm:"type:text" json:"document_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
