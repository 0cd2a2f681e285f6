package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BranchChat/models"
	"BranchChat/pkg/store/storetest"
)

func TestSweepHonoursRetentionWindow(t *testing.T) {
	f := newFixture(t)
	deletedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := f.conversation(t, "a", "b")
	_, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, conv.Versions[0].Messages[1].ID)
	require.NoError(t, err)
	live := f.conversation(t, "live")

	f.convs.Now = func() time.Time { return deletedAt }
	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, conv.ID))

	removed, err := f.sweeper.Sweep(f.ctx, deletedAt.Add(29*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Equal(t, int64(1), storetest.Count(t, f.db, &models.Conversation{}, "id = ?", conv.ID))

	removed, err = f.sweeper.Sweep(f.ctx, deletedAt.Add(31*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.Equal(t, int64(0), storetest.Count(t, f.db, &models.Conversation{}, "id = ?", conv.ID))
	require.Equal(t, int64(0), storetest.Count(t, f.db, &models.Version{}, "conversation_id = ?", conv.ID))
	require.Equal(t, int64(1), storetest.Count(t, f.db, &models.Message{}, ""))

	// idempotent
	removed, err = f.sweeper.Sweep(f.ctx, deletedAt.Add(31*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)

	// never soft deleted, never swept
	removed, err = f.sweeper.Sweep(f.ctx, time.Now().Add(10*365*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Equal(t, int64(1), storetest.Count(t, f.db, &models.Conversation{}, "id = ?", live.ID))
}

func TestSweepAtExactBoundaryKeepsConversation(t *testing.T) {
	f := newFixture(t)
	deletedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := f.conversation(t, "a")
	f.convs.Now = func() time.Time { return deletedAt }
	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, conv.ID))

	removed, err := f.sweeper.Sweep(f.ctx, deletedAt.Add(DefaultRetention))
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSweepInvalidatesCachedSummary(t *testing.T) {
	f := newFixture(t)
	deletedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := f.conversation(t, "a")
	f.convs.Now = func() time.Time { return deletedAt }
	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, conv.ID))
	f.cache.SetSummary(f.ctx, conv.ID, "stale")

	_, err := f.sweeper.Sweep(f.ctx, deletedAt.Add(31*24*time.Hour))
	require.NoError(t, err)
	_, ok := f.cache.GetSummary(f.ctx, conv.ID)
	require.False(t, ok)
}
