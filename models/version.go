package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Version is one timeline of a conversation. Parent and root message are
// identifier back-references; both are nulled by the database when the
// referenced row goes away. The root message rule is installed by
// store.Migrate because a gorm association would make versions and messages
// depend on each other.
type Version struct {
	ID              string   `gorm:"type:varchar(36);primaryKey"`
	ConversationID  string   `gorm:"type:varchar(36);not null;index"`
	ParentVersionID *string  `gorm:"type:varchar(36);index"`
	ParentVersion   *Version `gorm:"foreignKey:ParentVersionID;constraint:OnDelete:SET NULL"`
	RootMessageID   *string  `gorm:"type:varchar(36);index"`
	// NextSeq is the last sequence number handed out to a message of this version.
	NextSeq   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	Messages  []Message `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE"`
}

func (v *Version) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
