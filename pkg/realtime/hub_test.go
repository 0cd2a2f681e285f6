package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyThatConversation(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("conv-a")
	defer cancelA()
	b, cancelB := h.Subscribe("conv-b")
	defer cancelB()

	n := h.Publish(Event{Type: EventMessageAppended, ConversationID: "conv-a", VersionID: "v1"})
	require.Equal(t, 1, n)

	ev := <-a.C
	require.Equal(t, EventMessageAppended, ev.Type)
	require.Equal(t, "v1", ev.VersionID)
	require.False(t, ev.At.IsZero())
	require.Len(t, b.C, 0)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub(1)
	sub, cancel := h.Subscribe("c")
	defer cancel()

	require.Equal(t, 1, h.Publish(Event{Type: EventSummaryUpdated, ConversationID: "c"}))
	require.Equal(t, 0, h.Publish(Event{Type: EventSummaryUpdated, ConversationID: "c"}))
	require.Len(t, sub.C, 1)
}

func TestCancelClosesChannelAndDetaches(t *testing.T) {
	h := NewHub(1)
	sub, cancel := h.Subscribe("c")
	require.Equal(t, 1, h.Subscribers("c"))

	cancel()
	cancel()
	_, ok := <-sub.C
	require.False(t, ok)
	require.Equal(t, 0, h.Subscribers("c"))
	require.Equal(t, 0, h.Publish(Event{Type: EventVersionCreated, ConversationID: "c"}))
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	h := NewHub(1)
	s1, cancel1 := h.Subscribe("a")
	s2, _ := h.Subscribe("b")
	h.Close()
	_, ok1 := <-s1.C
	_, ok2 := <-s2.C
	require.False(t, ok1)
	require.False(t, ok2)
	// cancelling after Close must not panic on a closed channel
	cancel1()
}
