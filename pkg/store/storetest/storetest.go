// Package storetest opens throwaway sqlite databases for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"BranchChat/models"
	"BranchChat/pkg/store"
)

// DB returns a migrated, role-seeded in-memory database private to tb.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if err := store.SeedRoles(db); err != nil {
		tb.Fatalf("seed roles: %v", err)
	}
	return db
}

func SeedUser(tb testing.TB, ctx context.Context, db *gorm.DB, email string) *models.User {
	tb.Helper()
	u := &models.User{Email: email, Username: email}
	if err := u.SetPassword("passw0rd"); err != nil {
		tb.Fatalf("hash password: %v", err)
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func Count(tb testing.TB, db *gorm.DB, model any, query string, args ...any) int64 {
	tb.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	return n
}
