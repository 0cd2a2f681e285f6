package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to conversation subscribers.
const (
	EventMessageAppended      = "message_appended"
	EventVersionCreated       = "version_created"
	EventActiveVersionChanged = "active_version_changed"
	EventSummaryUpdated       = "summary_updated"
)

// Event is one change notification for a conversation.
type Event struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	VersionID      string    `json:"version_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	At             time.Time `json:"at"`
}

// Subscription receives the events of one conversation until cancelled.
type Subscription struct {
	ID             string
	ConversationID string
	C              <-chan Event

	ch   chan Event
	once sync.Once
}

// Hub fans conversation events out to subscribers. Publish never blocks;
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Subscription // conversationID -> subscriptionID -> sub
	buffer int
}

// NewHub constructs a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{rooms: make(map[string]map[string]*Subscription), buffer: buffer}
}

// Subscribe registers interest in a conversation. The returned func detaches
// the subscription and closes its channel; it is safe to call more than once.
func (h *Hub) Subscribe(conversationID string) (*Subscription, func()) {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), ConversationID: conversationID, C: ch, ch: ch}

	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Subscription)
		h.rooms[conversationID] = room
	}
	room[sub.ID] = sub
	h.mu.Unlock()

	return sub, func() { h.unsubscribe(sub) }
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if room := h.rooms[sub.ConversationID]; room != nil {
		delete(room, sub.ID)
		if len(room) == 0 {
			delete(h.rooms, sub.ConversationID)
		}
	}
	h.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers ev to every subscriber of ev.ConversationID and reports how
// many received it.
func (h *Hub) Publish(ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, sub := range h.rooms[ev.ConversationID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Close detaches every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*Subscription)
	h.mu.Unlock()
	for _, room := range rooms {
		for _, sub := range room {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
}
