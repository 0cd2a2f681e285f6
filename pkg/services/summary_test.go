package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"BranchChat/models"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/queue"
	"BranchChat/pkg/realtime"
)

func TestSummarizerFailureStoresSentinel(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "hi")
	f.summarizer.fn = func(string) (string, error) { return "", errors.New("model unreachable") }

	msg, err := f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleUser, "still saved")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, SummaryFailedSentinel, f.reload(t, conv.ID).Summary)

	_, cached := f.cache.GetSummary(f.ctx, conv.ID)
	require.False(t, cached)
}

func TestEmptySummarizerOutputStoresSentinel(t *testing.T) {
	f := newFixture(t)
	f.summarizer.fn = func(string) (string, error) { return "  ", nil }
	conv := f.conversation(t, "hi")
	require.Equal(t, SummaryFailedSentinel, f.reload(t, conv.ID).Summary)
}

func TestSummaryDoesNotTouchModifiedAt(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "hi")
	before := f.reload(t, conv.ID).UpdatedAt

	_, err := f.trigger.Recompute(f.ctx, conv.Versions[0].ID)
	require.NoError(t, err)
	require.True(t, before.Equal(f.reload(t, conv.ID).UpdatedAt))
}

func TestSummaryScopedToChangedVersion(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2", "m3")
	_, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, conv.Versions[0].Messages[2].ID)
	require.NoError(t, err)

	_, err = f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleAssistant, "other m3")
	require.NoError(t, err)

	require.Equal(t, "user: m1\nassistant: m2\nassistant: other m3", f.summarizer.last())
	stored := f.reload(t, conv.ID).Summary
	require.Equal(t, "summary of user: m1\nassistant: m2\nassistant: other m3", stored)
	require.GreaterOrEqual(t, f.events.count(realtime.EventSummaryUpdated), 3)
}

func TestSummaryFollowsActiveVersion(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2", "m3")
	root := conv.Versions[0]
	branch, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, root.Messages[2].ID)
	require.NoError(t, err)
	_, err = f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleUser, "branch only")
	require.NoError(t, err)

	_, err = f.convs.SwitchActive(f.ctx, f.user.ID, conv.ID, root.ID)
	require.NoError(t, err)

	rootSummary := "summary of user: m1\nassistant: m2\nuser: m3"
	got, err := f.summaries.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, rootSummary, got)
	require.Equal(t, rootSummary, f.reload(t, conv.ID).Summary)

	// Appending to the now inactive branch leaves the summary alone.
	calls := f.summarizer.calls()
	_, err = f.convs.AppendToVersion(f.ctx, f.user.ID, branch.ID, models.RoleAssistant, "more")
	require.NoError(t, err)
	require.Equal(t, calls, f.summarizer.calls())
	require.Equal(t, rootSummary, f.reload(t, conv.ID).Summary)
	cached, ok := f.cache.GetSummary(f.ctx, conv.ID)
	require.True(t, ok)
	require.Equal(t, rootSummary, cached)
}

func TestRecomputeDiscardsResultAfterSwitch(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2")
	root := conv.Versions[0]
	branch, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, root.Messages[1].ID)
	require.NoError(t, err)
	before := f.reload(t, conv.ID).Summary

	// The branch loses the active slot while its summary is being generated.
	f.summarizer.fn = func(text string) (string, error) {
		require.NoError(t, f.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			UpdateColumn("active_version_id", root.ID).Error)
		return "stale " + text, nil
	}
	got, err := f.trigger.Recompute(f.ctx, branch.ID)
	require.NoError(t, err)
	require.Equal(t, before, got)
	require.Equal(t, before, f.reload(t, conv.ID).Summary)
}

func TestSummaryInputIsCapped(t *testing.T) {
	msgs := []models.Message{
		{Role: models.Role{Name: "user"}, Content: strings.Repeat("é", 5000)},
	}
	in := summaryInput(msgs)
	require.Equal(t, maxSummaryInputRunes, len([]rune(in)))
	require.True(t, strings.HasPrefix(in, "user: é"))
}

func TestGetSummaryServesCacheThenRecomputes(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "hi", "hello")
	calls := f.summarizer.calls()

	got, err := f.summaries.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "summary of user: hi\nassistant: hello", got)
	require.Equal(t, calls, f.summarizer.calls())

	f.cache.InvalidateSummary(f.ctx, conv.ID)
	got, err = f.summaries.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "summary of user: hi\nassistant: hello", got)
	require.Equal(t, calls+1, f.summarizer.calls())

	_, err = f.summaries.Get(f.ctx, f.other.ID, conv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetSummaryDoesNotCacheSentinel(t *testing.T) {
	f := newFixture(t)
	f.summarizer.fn = func(string) (string, error) { return "", errors.New("down") }
	conv := f.conversation(t, "hi")

	got, err := f.summaries.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, SummaryFailedSentinel, got)

	f.summarizer.fn = nil
	got, err = f.summaries.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "summary of user: hi", got)
}

func TestListSummaries(t *testing.T) {
	f := newFixture(t)
	f.convs.Now = stepClock(time.Now().UTC(), time.Second)
	pets, err := f.convs.Create(f.ctx, f.user.ID, "Pets", []NewMessage{{Role: models.RoleUser, Content: "my cat"}})
	require.NoError(t, err)
	travel, err := f.convs.Create(f.ctx, f.user.ID, "Travel", []NewMessage{{Role: models.RoleUser, Content: "Lisbon"}})
	require.NoError(t, err)
	_, err = f.convs.Create(f.ctx, f.user.ID, "Empty", nil)
	require.NoError(t, err)
	gone, err := f.convs.Create(f.ctx, f.user.ID, "Gone", []NewMessage{{Role: models.RoleUser, Content: "cat"}})
	require.NoError(t, err)
	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, gone.ID))

	all, err := f.summaries.List(f.ctx, f.user.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, travel.ID, all[0].ConversationID)
	require.Equal(t, pets.ID, all[1].ConversationID)

	cats, err := f.summaries.List(f.ctx, f.user.ID, "CAT")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, pets.ID, cats[0].ConversationID)

	byTitle, err := f.summaries.List(f.ctx, f.user.ID, "trav")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
}

type fakeQueue struct {
	mu    sync.Mutex
	err   error
	tasks []queue.Task
}

func (q *fakeQueue) Enqueue(_ context.Context, t queue.Task, _ ...queue.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, t)
	return "id", nil
}

func (q *fakeQueue) Close() error { return nil }

type countingDispatcher struct{ n int }

func (d *countingDispatcher) Dispatch(context.Context, string) { d.n++ }

func TestQueueDispatcher(t *testing.T) {
	q := &fakeQueue{}
	inline := &countingDispatcher{}
	d := NewQueueDispatcher(q, inline, logger.Nop())

	d.Dispatch(context.Background(), "v1")
	require.Len(t, q.tasks, 1)
	require.Equal(t, SummaryTaskType, q.tasks[0].Type)
	require.JSONEq(t, `{"version_id":"v1"}`, string(q.tasks[0].Payload))
	require.Equal(t, 0, inline.n)

	q.err = queue.ErrDuplicate
	d.Dispatch(context.Background(), "v1")
	require.Equal(t, 0, inline.n)

	q.err = errors.New("redis down")
	d.Dispatch(context.Background(), "v1")
	require.Equal(t, 1, inline.n)
}

func TestSummaryTaskHandler(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "hi")
	require.NoError(t, f.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).UpdateColumn("summary", "").Error)

	handle := SummaryTaskHandler(f.trigger, logger.Nop())
	task, err := NewSummaryTask(conv.Versions[0].ID)
	require.NoError(t, err)
	require.NoError(t, handle(f.ctx, task))
	require.Equal(t, "summary of user: hi", f.reload(t, conv.ID).Summary)

	missing, err := NewSummaryTask("missing")
	require.NoError(t, err)
	require.NoError(t, handle(f.ctx, missing))
	require.NoError(t, handle(f.ctx, queue.Task{Type: SummaryTaskType, Payload: []byte("{")}))
}

func TestLocalSummarizer(t *testing.T) {
	var s LocalSummarizer
	out, err := s.Summarize(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "No messages yet", out)

	out, err = s.Summarize(context.Background(), "user: a\nassistant: b\nuser: c\nassistant: d")
	require.NoError(t, err)
	require.Equal(t, "user: a | assistant: b | user: c", out)
}
