package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a user's chat thread. ActiveVersionID carries no gorm
// association (it would form a cycle with versions.conversation_id); its
// foreign key is added by store.Migrate.
type Conversation struct {
	ID              string     `gorm:"type:varchar(36);primaryKey"`
	UserID          uint       `gorm:"not null;index"`
	Title           string     `gorm:"size:100;not null"`
	Summary         string     `gorm:"type:text"`
	ActiveVersionID *string    `gorm:"type:varchar(36);index"`
	DeletedAt       *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null;index"`
	Versions        []Version  `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsDeleted reports whether the conversation was soft-deleted.
func (c *Conversation) IsDeleted() bool { return c.DeletedAt != nil }
