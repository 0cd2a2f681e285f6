package cache

import (
	"context"
	"time"
)

const summaryKeyPrefix = "conversation_summary_"

// SummaryKey is the cache key of a conversation's summary.
func SummaryKey(conversationID string) string {
	return summaryKeyPrefix + conversationID
}

// Summaries stores conversation summaries in a Cache with a fixed expiry.
type Summaries struct {
	c   *Cache
	ttl time.Duration
}

func NewSummaries(c *Cache, ttl time.Duration) *Summaries {
	return &Summaries{c: c, ttl: ttl}
}

func (s *Summaries) GetSummary(_ context.Context, conversationID string) (string, bool) {
	v, ok := s.c.Get(SummaryKey(conversationID))
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Summaries) SetSummary(_ context.Context, conversationID, summary string) {
	s.c.Set(SummaryKey(conversationID), summary, s.ttl)
}

func (s *Summaries) InvalidateSummary(_ context.Context, conversationIDs ...string) {
	keys := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		keys = append(keys, SummaryKey(id))
	}
	s.c.Delete(keys...)
}
