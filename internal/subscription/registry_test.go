package subscription

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConnection registers a connection that never runs its loops, so tests
// can inspect frames on the send channel directly.
func testConnection(t *testing.T, r *Registry) *Connection {
	t.Helper()
	c := newConnection(r, nil)
	r.add(c)
	return c
}

func drainFrames(c *Connection) []ServerFrame {
	var frames []ServerFrame
	for {
		select {
		case f := <-c.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestPublish_LiteralSubscription(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{TopicMemoryCreated})

	r.Publish(TopicMemoryCreated, map[string]interface{}{"id": "M"})
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeEvent, frames[0].Type)
	assert.Equal(t, TopicMemoryCreated, frames[0].Topic)

	r.Publish(TopicProfileUpdated, nil)
	assert.Empty(t, drainFrames(c), "unrelated topics must not be delivered")
}

func TestPublish_WildcardSubscription(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{"memory:*"})

	r.Publish(TopicMemoryCreated, map[string]interface{}{"id": "M"})
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TopicMemoryCreated, frames[0].Topic)

	r.Publish(TopicProfileUpdated, nil)
	assert.Empty(t, drainFrames(c))
}

func TestPublish_ExactlyOncePerConnection(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	// Both the literal topic and a matching wildcard are subscribed; the
	// event must still arrive once.
	r.subscribe(c.ID, []string{TopicMemoryCreated, "memory:*", "*"})

	r.Publish(TopicMemoryCreated, nil)
	assert.Len(t, drainFrames(c), 1)
}

func TestSubscribe_Idempotent(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{TopicMemoryCreated})
	r.subscribe(c.ID, []string{TopicMemoryCreated})

	assert.Equal(t, 1, r.SubscriberCount(TopicMemoryCreated))
	r.Publish(TopicMemoryCreated, nil)
	assert.Len(t, drainFrames(c), 1)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{TopicMemoryCreated})
	r.unsubscribe(c.ID, []string{TopicMemoryCreated})

	r.Publish(TopicMemoryCreated, nil)
	assert.Empty(t, drainFrames(c))
	assert.Equal(t, 0, r.SubscriberCount(TopicMemoryCreated))
}

func TestRemove_ReleasesIndexEntries(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{TopicMemoryCreated, "memory:*"})

	r.remove(c.ID)
	assert.Equal(t, 0, r.ConnectionCount())
	assert.Equal(t, 0, r.SubscriberCount(TopicMemoryCreated))
}

func TestPublish_DropsConnectionWithFullBuffer(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)
	r.subscribe(c.ID, []string{TopicMemoryCreated})

	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.enqueue(ServerFrame{Type: TypeEvent}))
	}
	r.Publish(TopicMemoryCreated, nil)

	assert.Equal(t, 0, r.ConnectionCount(), "a subscriber that stopped draining is evicted")
}

func TestHandleFrame_SubscribeAndAck(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)

	c.handleFrame([]byte(`{"action":"subscribe","topics":["memory:*"]}`))
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeSubscribed, frames[0].Type)
	assert.Equal(t, "subscription", frames[0].Topic)
	assert.Equal(t, 1, r.SubscriberCount(TopicMemoryCreated))
	assert.Equal(t, []string{"memory:*"}, c.Topics())
}

func TestHandleFrame_Ping(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)

	c.handleFrame([]byte(`{"action":"ping"}`))
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypePong, frames[0].Type)
	assert.False(t, frames[0].Timestamp.IsZero())
}

func TestHandleFrame_UnknownActionKeepsConnection(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)

	c.handleFrame([]byte(`{"action":"launch"}`))
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeError, frames[0].Type)

	// Still registered and usable afterwards.
	c.handleFrame([]byte(`{"action":"ping"}`))
	require.Len(t, drainFrames(c), 1)
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestHandleFrame_Malformed(t *testing.T) {
	r := NewRegistry()
	c := testConnection(t, r)

	c.handleFrame([]byte(`{not json`))
	frames := drainFrames(c)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeError, frames[0].Type)
}

func TestServerFrame_WireShape(t *testing.T) {
	frame := eventFrame(TopicMemoryCreated, map[string]interface{}{"id": "M"}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	data, err := frame.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "event", decoded["type"])
	assert.Equal(t, "memory:created", decoded["topic"])
	assert.NotNil(t, decoded["data"])
	assert.NotNil(t, decoded["timestamp"])
}
