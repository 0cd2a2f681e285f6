package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"BranchChat/models"
	"BranchChat/pkg/cache"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
	"BranchChat/pkg/store/storetest"
)

type stubSummarizer struct {
	mu     sync.Mutex
	inputs []string
	fn     func(text string) (string, error)
}

func (s *stubSummarizer) Summarize(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, text)
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return "summary of " + text, nil
	}
	return fn(text)
}

func (s *stubSummarizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func (s *stubSummarizer) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return ""
	}
	return s.inputs[len(s.inputs)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(ev realtime.Event) int {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return 1
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx        context.Context
	db         *gorm.DB
	user       *models.User
	other      *models.User
	cache      *cache.Summaries
	events     *recorder
	summarizer *stubSummarizer
	trigger    *SummaryTrigger
	convs      *ConversationService
	branches   *BranchService
	summaries  *SummaryService
	sweeper    *RetentionSweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := storetest.DB(t)
	log := logger.Nop()

	f := &fixture{
		ctx:        ctx,
		db:         db,
		user:       storetest.SeedUser(t, ctx, db, "owner@example.com"),
		other:      storetest.SeedUser(t, ctx, db, "other@example.com"),
		cache:      cache.NewSummaries(cache.New(100, 0), time.Hour),
		events:     &recorder{},
		summarizer: &stubSummarizer{},
	}
	f.trigger = NewSummaryTrigger(db, f.summarizer, f.cache, f.events, log)
	inline := NewInlineDispatcher(f.trigger, log)
	f.convs = NewConversationService(db, inline, f.cache, f.events, log)
	f.branches = NewBranchService(db, inline, f.events, log)
	f.summaries = NewSummaryService(db, f.trigger, f.cache, log)
	f.sweeper = NewRetentionSweeper(db, f.cache, DefaultRetention, log)
	return f
}

// conversation creates a conversation for the owner holding contents as
// alternating user/assistant messages.
func (f *fixture) conversation(t *testing.T, contents ...string) *ConversationDetail {
	t.Helper()
	msgs := make([]NewMessage, 0, len(contents))
	for i, c := range contents {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, NewMessage{Role: role, Content: c})
	}
	conv, err := f.convs.Create(f.ctx, f.user.ID, "chat", msgs)
	require.NoError(t, err)
	return conv
}

func (f *fixture) reload(t *testing.T, id string) models.Conversation {
	t.Helper()
	var c models.Conversation
	require.NoError(t, f.db.Take(&c, "id = ?", id).Error)
	return c
}

func contentsOf(msgs []MessageView) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// stepClock returns a clock that advances by step on every reading.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
