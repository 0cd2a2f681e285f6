package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// RateLimiter is a token bucket per user and client IP.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	window   time.Duration
	capacity int

	now func() time.Time
}

func NewRateLimiter(window time.Duration, capacity int) *RateLimiter {
	if window <= 0 {
		window = 10 * time.Second
	}
	if capacity <= 0 {
		capacity = 5
	}
	return &RateLimiter{buckets: map[string]*bucket{}, window: window, capacity: capacity, now: time.Now}
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

func userKey(c *gin.Context) string {
	uid, _ := CurrentUserID(c)
	return strconv.FormatUint(uint64(uid), 10) + "@" + clientIP(c)
}

// Allow takes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		add := int(float64(l.capacity) * (float64(elapsed) / float64(l.window)))
		if add > 0 {
			b.tokens += add
			if b.tokens > l.capacity {
				b.tokens = l.capacity
			}
			b.lastRefill = now
		}
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(userKey(c)) {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "too many requests"})
			return
		}
		c.Next()
	}
}

// DuplicateGuard rejects the same text from the same key within ttl, so a
// double-submitted append does not create two messages.
type DuplicateGuard struct {
	mu   sync.Mutex
	last map[string]struct {
		text string
		ts   time.Time
	}
	ttl time.Duration
}

func NewDuplicateGuard(ttl time.Duration) *DuplicateGuard {
	return &DuplicateGuard{
		last: map[string]struct {
			text string
			ts   time.Time
		}{},
		ttl: ttl,
	}
}

// Allow reports whether text is new for key and records it.
func (g *DuplicateGuard) Allow(key, text string) bool {
	now := time.Now()
	text = strings.TrimSpace(text)
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.last[key]
	if ok && entry.text == text && now.Sub(entry.ts) < g.ttl {
		return false
	}
	g.last[key] = struct {
		text string
		ts   time.Time
	}{text: text, ts: now}
	return true
}

// Forget drops the record of text for key, so a retry after a failed write
// is not treated as a duplicate.
func (g *DuplicateGuard) Forget(key, text string) {
	text = strings.TrimSpace(text)
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.last[key]; ok && entry.text == text {
		delete(g.last, key)
	}
}
