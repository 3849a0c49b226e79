package subscription

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Connection is one live subscriber: a WebSocket, the set of patterns it
// subscribed to, and a buffered send channel drained by a single sender
// goroutine so per-connection delivery order is the publish order.
type Connection struct {
	ID string

	registry *Registry
	conn     *websocket.Conn
	logger   *logrus.Entry

	send chan ServerFrame
	done chan struct{}

	mu   sync.Mutex
	subs map[string]struct{}

	closeOnce sync.Once
	now       func() time.Time
}

func newConnection(registry *Registry, conn *websocket.Conn) *Connection {
	id := uuid.New().String()
	return &Connection{
		ID:       id,
		registry: registry,
		conn:     conn,
		logger:   logrus.WithFields(logrus.Fields{"component": "subscription", "connection": id}),
		send:     make(chan ServerFrame, sendBuffer),
		done:     make(chan struct{}),
		subs:     make(map[string]struct{}),
		now:      time.Now,
	}
}

// Serve runs the connection to completion: it registers with the registry,
// greets the client, then pumps frames until the peer goes away. It blocks
// until the connection is torn down.
func (c *Connection) Serve() {
	c.registry.add(c)
	defer c.registry.remove(c.ID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.senderLoop()
	}()
	go func() {
		defer wg.Done()
		c.pingLoop()
	}()

	c.enqueue(ServerFrame{
		Type:      TypeConnected,
		Data:      map[string]interface{}{"id": c.ID, "timestamp": c.now().UTC()},
		Timestamp: c.now().UTC(),
	})

	c.readLoop()
	c.close()
	wg.Wait()
}

// Topics returns a snapshot of the connection's subscribed patterns.
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	return topics
}

func (c *Connection) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Debug("read failed")
			}
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame dispatches one upstream control frame. Unknown actions get an
// error frame back; the connection stays open.
func (c *Connection) handleFrame(data []byte) {
	frame, err := ParseClientFrame(data)
	if err != nil {
		c.enqueue(errorFrame("malformed frame", c.now().UTC()))
		return
	}
	switch frame.Action {
	case ActionSubscribe:
		c.subscribe(frame.Topics)
	case ActionUnsubscribe:
		c.unsubscribe(frame.Topics)
	case ActionPing:
		c.enqueue(ServerFrame{Type: TypePong, Timestamp: c.now().UTC()})
	default:
		c.enqueue(errorFrame("unknown action "+frame.Action, c.now().UTC()))
	}
}

func (c *Connection) subscribe(topics []string) {
	c.mu.Lock()
	for _, t := range topics {
		if t == "" {
			continue
		}
		c.subs[t] = struct{}{}
	}
	c.mu.Unlock()
	c.registry.subscribe(c.ID, topics)
	c.ackSubscription(TypeSubscribed, topics)
}

func (c *Connection) unsubscribe(topics []string) {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()
	c.registry.unsubscribe(c.ID, topics)
	c.ackSubscription(TypeUnsubscribed, topics)
}

func (c *Connection) ackSubscription(ackType string, topics []string) {
	c.enqueue(ServerFrame{
		Type:  ackType,
		Topic: "subscription",
		Data: map[string]interface{}{
			"topics":    topics,
			"timestamp": c.now().UTC(),
		},
		Timestamp: c.now().UTC(),
	})
}

// enqueue hands a frame to the sender goroutine without blocking. A full
// buffer means the client has stopped draining; the frame is dropped and
// false returned so the registry can evict the connection.
func (c *Connection) enqueue(frame ServerFrame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) senderLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			data, err := frame.JSON()
			if err != nil {
				c.logger.WithError(err).Warn("failed to marshal frame")
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.WithError(err).Debug("write failed")
				c.close()
				return
			}
		}
	}
}

func (c *Connection) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.logger.WithError(err).Debug("ping failed")
				c.close()
				return
			}
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
