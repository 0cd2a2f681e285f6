package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"BranchChat/models"
	"BranchChat/pkg/logger"
)

const (
	DefaultRetention = 30 * 24 * time.Hour
	sweepBatchSize   = 500
)

// RetentionSweeper hard-deletes conversations soft-deleted longer ago than
// the retention window. Versions and messages go with them by cascade.
type RetentionSweeper struct {
	db        *gorm.DB
	cache     SummaryCache
	log       *logger.Logger
	retention time.Duration

	mu sync.Mutex

	Now func() time.Time
}

func NewRetentionSweeper(db *gorm.DB, cache SummaryCache, retention time.Duration, log *logger.Logger) *RetentionSweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RetentionSweeper{
		db:        db,
		cache:     cache,
		log:       log.With("service", "retention"),
		retention: retention,
		Now:       time.Now,
	}
}

// Sweep removes every conversation whose deleted_at is strictly before
// now minus the retention window and reports how many were removed. Sweeps
// on one sweeper never overlap.
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.UTC().Add(-s.retention)
	db := s.db.WithContext(ctx)
	var removed int64
	for {
		var ids []string
		err := db.Model(&models.Conversation{}).
			Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
			Order("deleted_at ASC").
			Limit(sweepBatchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return removed, storageError(err, "select expired conversations")
		}
		if len(ids) == 0 {
			break
		}
		// Clear the back-reference so the version cascade never has to
		// update a conversation row that is being deleted.
		if err := db.Model(&models.Conversation{}).Where("id IN ?", ids).
			UpdateColumn("active_version_id", nil).Error; err != nil {
			return removed, storageError(err, "detach active versions")
		}
		res := db.Where("id IN ?", ids).Delete(&models.Conversation{})
		if res.Error != nil {
			return removed, storageError(res.Error, "delete expired conversations")
		}
		removed += res.RowsAffected
		s.cache.InvalidateSummary(ctx, ids...)
		if len(ids) < sweepBatchSize {
			break
		}
	}
	if removed > 0 {
		s.log.Info("retention sweep removed conversations", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *RetentionSweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx, s.Now()); err != nil {
				s.log.Error("retention sweep failed", "error", err)
			}
		}
	}
}
