package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message belongs to exactly one version. Within a version Seq and CreatedAt
// increase together.
type Message struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	VersionID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_message_version_seq,priority:1"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_message_version_seq,priority:2"`
	RoleID    uint      `gorm:"not null;index"`
	Role      Role      `gorm:"constraint:OnDelete:RESTRICT"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
