package services

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"BranchChat/models"
)

var forUpdate = clause.Locking{Strength: "UPDATE"}

// liveConversations scopes a query to the owner's non-deleted conversations.
func liveConversations(ownerID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("conversations.user_id = ? AND conversations.deleted_at IS NULL", ownerID)
	}
}

func messagesInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("messages.seq ASC")
}

func versionsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("versions.created_at ASC, versions.id ASC")
}

// findConversation loads an owned, non-deleted conversation, optionally
// locking its row for the rest of the transaction.
func findConversation(tx *gorm.DB, ownerID uint, id string, lock bool) (*models.Conversation, error) {
	q := tx.Scopes(liveConversations(ownerID))
	if lock {
		q = q.Clauses(forUpdate)
	}
	var conv models.Conversation
	if err := q.Where("conversations.id = ?", id).Take(&conv).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("conversation", id)
		}
		return nil, storageError(err, "load conversation")
	}
	return &conv, nil
}

// findVersion loads a version whose conversation is owned and not deleted.
func findVersion(tx *gorm.DB, ownerID uint, id string) (*models.Version, error) {
	var v models.Version
	err := tx.Joins("JOIN conversations ON conversations.id = versions.conversation_id").
		Scopes(liveConversations(ownerID)).
		Where("versions.id = ?", id).
		Take(&v).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("version", id)
		}
		return nil, storageError(err, "load version")
	}
	return &v, nil
}

// findMessage loads a message whose conversation is owned and not deleted.
func findMessage(tx *gorm.DB, ownerID uint, id string) (*models.Message, error) {
	var m models.Message
	err := tx.Joins("JOIN versions ON versions.id = messages.version_id").
		Joins("JOIN conversations ON conversations.id = versions.conversation_id").
		Scopes(liveConversations(ownerID)).
		Where("messages.id = ?", id).
		Take(&m).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("message", id)
		}
		return nil, storageError(err, "load message")
	}
	return &m, nil
}

func findRole(tx *gorm.DB, name string) (*models.Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, invalid("role", "role is required")
	}
	var role models.Role
	if err := tx.Where("name = ?", name).Take(&role).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, invalid("role", "unknown role "+name)
		}
		return nil, storageError(err, "load role")
	}
	return &role, nil
}
