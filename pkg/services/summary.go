package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"BranchChat/models"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/realtime"
)

// SummaryFailedSentinel is stored when the summarizer fails or returns nothing.
const SummaryFailedSentinel = "Summary generation failed."

const (
	maxSummaryInputRunes  = 3000
	defaultSummaryTimeout = 30 * time.Second
)

// Summarizer turns conversation text into a short summary. It may be slow and
// may fail.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type SummarizerFunc func(ctx context.Context, text string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// SummaryCache holds recently computed summaries by conversation id.
type SummaryCache interface {
	GetSummary(ctx context.Context, conversationID string) (string, bool)
	SetSummary(ctx context.Context, conversationID, summary string)
	InvalidateSummary(ctx context.Context, conversationIDs ...string)
}

// EventPublisher receives conversation events after their transaction commits.
type EventPublisher interface {
	Publish(ev realtime.Event) int
}

type nopPublisher struct{}

func (nopPublisher) Publish(realtime.Event) int { return 0 }

// SummaryTrigger recomputes the stored summary of a version's conversation
// from that version's full ordered history.
type SummaryTrigger struct {
	db         *gorm.DB
	summarizer Summarizer
	cache      SummaryCache
	events     EventPublisher
	log        *logger.Logger

	Timeout time.Duration
}

func NewSummaryTrigger(db *gorm.DB, summarizer Summarizer, cache SummaryCache, events EventPublisher, log *logger.Logger) *SummaryTrigger {
	if events == nil {
		events = nopPublisher{}
	}
	return &SummaryTrigger{
		db:         db,
		summarizer: summarizer,
		cache:      cache,
		events:     events,
		log:        log.With("service", "summary"),
		Timeout:    defaultSummaryTimeout,
	}
}

// Recompute summarizes versionID and stores the result on its conversation.
// The conversation summary describes the active version only: a version that
// is not active leaves the stored summary untouched, and the current summary
// is returned. Summarizer failures are recorded as SummaryFailedSentinel,
// never returned.
func (t *SummaryTrigger) Recompute(ctx context.Context, versionID string) (string, error) {
	db := t.db.WithContext(ctx)

	var v models.Version
	if err := db.Take(&v, "id = ?", versionID).Error; err != nil {
		if isRecordNotFound(err) {
			return "", notFound("version", versionID)
		}
		return "", storageError(err, "load version")
	}
	var conv models.Conversation
	if err := db.Take(&conv, "id = ?", v.ConversationID).Error; err != nil {
		if isRecordNotFound(err) {
			return "", notFound("conversation", v.ConversationID)
		}
		return "", storageError(err, "load conversation")
	}
	if !isActive(&conv, versionID) {
		t.log.Debug("skipping summary of inactive version", "conversation_id", conv.ID, "version_id", versionID)
		return conv.Summary, nil
	}

	var msgs []models.Message
	if err := db.Preload("Role").Scopes(messagesInOrder).Where("version_id = ?", versionID).Find(&msgs).Error; err != nil {
		return "", storageError(err, "load messages")
	}
	summary := ""
	if len(msgs) > 0 {
		summary = t.summarize(ctx, conv.ID, versionID, summaryInput(msgs))
	}

	// The summarizer is slow; the version may have been switched away meanwhile.
	stored := true
	err := db.Transaction(func(tx *gorm.DB) error {
		var current models.Conversation
		if err := tx.Clauses(forUpdate).Take(&current, "id = ?", conv.ID).Error; err != nil {
			return storageError(err, "lock conversation")
		}
		if !isActive(&current, versionID) {
			stored = false
			summary = current.Summary
			return nil
		}
		// UpdateColumn keeps updated_at: a summary refresh is not a user modification.
		if err := tx.Model(&current).UpdateColumn("summary", summary).Error; err != nil {
			return storageError(err, "store summary")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !stored {
		t.log.Debug("version switched during summary, discarding", "conversation_id", conv.ID, "version_id", versionID)
		return summary, nil
	}

	if summary == "" || summary == SummaryFailedSentinel {
		t.cache.InvalidateSummary(ctx, conv.ID)
	} else {
		t.cache.SetSummary(ctx, conv.ID, summary)
	}
	t.events.Publish(realtime.Event{
		Type:           realtime.EventSummaryUpdated,
		ConversationID: conv.ID,
		VersionID:      versionID,
		Data:           map[string]string{"summary": summary},
	})
	return summary, nil
}

func isActive(c *models.Conversation, versionID string) bool {
	return c.ActiveVersionID != nil && *c.ActiveVersionID == versionID
}

func (t *SummaryTrigger) summarize(ctx context.Context, conversationID, versionID, text string) string {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultSummaryTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := t.summarizer.Summarize(sctx, text)
	if err != nil {
		t.log.Warn("summarizer failed", "conversation_id", conversationID, "version_id", versionID, "error", err)
		return SummaryFailedSentinel
	}
	out = strings.TrimSpace(out)
	if out == "" {
		t.log.Warn("summarizer returned empty text", "conversation_id", conversationID, "version_id", versionID)
		return SummaryFailedSentinel
	}
	return out
}

// summaryInput renders messages as "role: content" lines, capped in length.
func summaryInput(msgs []models.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role.Name)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	r := []rune(b.String())
	if len(r) > maxSummaryInputRunes {
		r = r[:maxSummaryInputRunes]
	}
	return string(r)
}

// SummaryDispatcher schedules a recompute after a version's messages changed.
// Dispatch never fails the caller.
type SummaryDispatcher interface {
	Dispatch(ctx context.Context, versionID string)
}

// InlineDispatcher recomputes on the calling goroutine.
type InlineDispatcher struct {
	trigger *SummaryTrigger
	log     *logger.Logger
}

func NewInlineDispatcher(trigger *SummaryTrigger, log *logger.Logger) *InlineDispatcher {
	return &InlineDispatcher{trigger: trigger, log: log}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, versionID string) {
	// The request may finish before the summarizer does.
	ctx = context.WithoutCancel(ctx)
	if _, err := d.trigger.Recompute(ctx, versionID); err != nil {
		d.log.Error("summary recompute failed", "version_id", versionID, "error", err)
	}
}

// SummaryService serves stored summaries and regenerates them on demand.
type SummaryService struct {
	db      *gorm.DB
	trigger *SummaryTrigger
	cache   SummaryCache
	group   singleflight.Group
	log     *logger.Logger
}

func NewSummaryService(db *gorm.DB, trigger *SummaryTrigger, cache SummaryCache, log *logger.Logger) *SummaryService {
	return &SummaryService{db: db, trigger: trigger, cache: cache, log: log.With("service", "summary")}
}

// Get returns the cached summary, or recomputes it from the active version.
// Concurrent calls for one conversation share a single recompute.
func (s *SummaryService) Get(ctx context.Context, ownerID uint, conversationID string) (string, error) {
	conv, err := findConversation(s.db.WithContext(ctx), ownerID, conversationID, false)
	if err != nil {
		return "", err
	}
	if cached, ok := s.cache.GetSummary(ctx, conv.ID); ok {
		return cached, nil
	}
	if conv.ActiveVersionID == nil {
		return conv.Summary, nil
	}
	versionID := *conv.ActiveVersionID
	v, err, shared := s.group.Do(conv.ID, func() (any, error) {
		return s.trigger.Recompute(context.WithoutCancel(ctx), versionID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.log.Debug("summary recompute shared", "conversation_id", conv.ID)
	}
	return v.(string), nil
}

// List returns the owner's conversations that have a summary, newest first,
// filtered by a case-insensitive match on title or summary when q is set.
func (s *SummaryService) List(ctx context.Context, ownerID uint, q string) ([]SummaryView, error) {
	query := s.db.WithContext(ctx).Scopes(liveConversations(ownerID)).
		Where("conversations.summary IS NOT NULL AND conversations.summary <> ''")
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("(LOWER(conversations.title) LIKE ? OR LOWER(conversations.summary) LIKE ?)", like, like)
	}
	var convs []models.Conversation
	if err := query.Order("conversations.updated_at DESC, conversations.id DESC").Find(&convs).Error; err != nil {
		return nil, storageError(err, "list summaries")
	}
	out := make([]SummaryView, 0, len(convs))
	for _, c := range convs {
		out = append(out, SummaryView{ConversationID: c.ID, Title: c.Title, Summary: c.Summary, ModifiedAt: c.UpdatedAt})
	}
	return out, nil
}
