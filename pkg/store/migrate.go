package store

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"BranchChat/models"
)

const (
	rootMessageConstraint   = "fk_versions_root_message"
	activeVersionConstraint = "fk_conversations_active_version"
	activeVersionCheck      = "chk_conversations_active_version"
)

// Migrate creates or updates the schema, including the rules that null
// versions.root_message_id and conversations.active_version_id when the row
// they point at is deleted.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Conversation{},
		&models.Version{},
		&models.Message{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := migrateRootMessageRule(db); err != nil {
		return fmt.Errorf("root message rule: %w", err)
	}
	if err := migrateActiveVersionRule(db); err != nil {
		return fmt.Errorf("active version rule: %w", err)
	}
	return nil
}

func migrateRootMessageRule(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite":
		// sqlite cannot add a constraint to an existing table; a trigger gives
		// the same effect and also fires for cascaded deletes.
		return db.Exec(`
			CREATE TRIGGER IF NOT EXISTS ` + rootMessageConstraint + `
			AFTER DELETE ON messages
			BEGIN
				UPDATE versions SET root_message_id = NULL WHERE root_message_id = OLD.id;
			END`).Error
	default:
		if db.Migrator().HasConstraint(&models.Version{}, rootMessageConstraint) {
			return nil
		}
		return db.Exec(`
			ALTER TABLE versions
			ADD CONSTRAINT ` + rootMessageConstraint + `
			FOREIGN KEY (root_message_id)
			REFERENCES messages(id)
			ON DELETE SET NULL`).Error
	}
}

// migrateActiveVersionRule ties conversations.active_version_id to versions.
// On sqlite a second trigger also rejects a version of another conversation.
func migrateActiveVersionRule(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite":
		if err := db.Exec(`
			CREATE TRIGGER IF NOT EXISTS ` + activeVersionConstraint + `
			AFTER DELETE ON versions
			BEGIN
				UPDATE conversations SET active_version_id = NULL WHERE active_version_id = OLD.id;
			END`).Error; err != nil {
			return err
		}
		return db.Exec(`
			CREATE TRIGGER IF NOT EXISTS ` + activeVersionCheck + `
			BEFORE UPDATE OF active_version_id ON conversations
			WHEN NEW.active_version_id IS NOT NULL AND NOT EXISTS (
				SELECT 1 FROM versions WHERE id = NEW.active_version_id AND conversation_id = NEW.id
			)
			BEGIN
				SELECT RAISE(ABORT, 'active version must belong to the conversation');
			END`).Error
	default:
		if db.Migrator().HasConstraint(&models.Conversation{}, activeVersionConstraint) {
			return nil
		}
		return db.Exec(`
			ALTER TABLE conversations
			ADD CONSTRAINT ` + activeVersionConstraint + `
			FOREIGN KEY (active_version_id)
			REFERENCES versions(id)
			ON DELETE SET NULL`).Error
	}
}

// SeedRoles makes sure every default role exists. Safe to call repeatedly.
func SeedRoles(db *gorm.DB) error {
	for _, name := range models.DefaultRoles {
		role := models.Role{Name: name}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}
