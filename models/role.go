package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultRoles are seeded at migration time.
var DefaultRoles = []string{RoleUser, RoleAssistant}

// Role is a referenceable message author kind so new roles need no schema change.
type Role struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:20;not null"`
}
