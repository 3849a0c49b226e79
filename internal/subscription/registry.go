package subscription

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Registry is the process-global subscriber index: topic -> connection ids
// for literal subscriptions, pattern -> connection ids for wildcards, and
// connection id -> Connection. Publishing collects the target set under the
// read lock, then delivers with the lock released so one slow client never
// stalls the bus.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	topics   map[string]map[string]struct{}
	patterns map[string]map[string]struct{}

	logger *logrus.Entry
	now    func() time.Time
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		topics:   make(map[string]map[string]struct{}),
		patterns: make(map[string]map[string]struct{}),
		logger:   logrus.WithField("component", "subscription"),
		now:      time.Now,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement happens in the CORS middleware before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request and runs the resulting connection until
// the peer disconnects.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) error {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}
	conn := newConnection(r, ws)
	conn.Serve()
	return nil
}

// Publish fans the event out to every connection whose subscriptions match
// topic, each receiving it exactly once. Delivery is best-effort: a
// connection whose send buffer is full is dropped from the registry.
func (r *Registry) Publish(topic string, data interface{}) {
	frame := eventFrame(topic, data, r.now().UTC())

	r.mu.RLock()
	targets := make(map[string]*Connection)
	for id := range r.topics[topic] {
		if c, ok := r.conns[id]; ok {
			targets[id] = c
		}
	}
	for pattern, ids := range r.patterns {
		if !Matches(pattern, topic) {
			continue
		}
		for id := range ids {
			if c, ok := r.conns[id]; ok {
				targets[id] = c
			}
		}
	}
	r.mu.RUnlock()

	for id, conn := range targets {
		if !conn.enqueue(frame) {
			r.logger.WithFields(logrus.Fields{"connection": id, "topic": topic}).Warn("subscriber not draining, dropping connection")
			r.remove(id)
			conn.close()
		}
	}
}

// ConnectionCount reports the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SubscriberCount reports how many connections would receive an event with
// the given topic right now.
func (r *Registry) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for id := range r.topics[topic] {
		seen[id] = struct{}{}
	}
	for pattern, ids := range r.patterns {
		if !Matches(pattern, topic) {
			continue
		}
		for id := range ids {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func (r *Registry) add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// remove forgets the connection and releases every topic index entry it
// held.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	for topic, ids := range r.topics {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.topics, topic)
		}
	}
	for pattern, ids := range r.patterns {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.patterns, pattern)
		}
	}
}

func (r *Registry) subscribe(id string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	for _, t := range topics {
		if t == "" {
			continue
		}
		index := r.topics
		if IsPattern(t) {
			index = r.patterns
		}
		if index[t] == nil {
			index[t] = make(map[string]struct{})
		}
		index[t][id] = struct{}{}
	}
}

func (r *Registry) unsubscribe(id string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topics {
		index := r.topics
		if IsPattern(t) {
			index = r.patterns
		}
		if ids, ok := index[t]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(index, t)
			}
		}
	}
}
