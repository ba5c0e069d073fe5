package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventShareChanged = "share-change"
	realtimeEventReady        = "ready"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "tabletally-api"
	realtimeBufferSize        = 16
)

// RealtimeMessage tells one user that a share addressed to them changed and resolution should be re-run.
type RealtimeMessage struct {
	UserID    string
	EventType string
	ShareID   int64
	Kind      string
	Action    string
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to every open stream of a user. Slow subscribers drop messages
// rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan RealtimeMessage
	nextID      int64
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]chan RealtimeMessage),
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}

	stream := make(chan RealtimeMessage, realtimeBufferSize)
	d.mu.Lock()
	d.nextID++
	subscriberID := d.nextID
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][subscriberID] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unsubscribe(userID, subscriberID) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

// Subscribers reports the number of open streams for userID.
func (d *RealtimeDispatcher) Subscribers(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) unsubscribe(userID string, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	streams := d.subscribers[userID]
	if streams == nil {
		return
	}
	delete(streams, subscriberID)
	if len(streams) == 0 {
		delete(d.subscribers, userID)
	}
}
