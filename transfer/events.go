package transfer

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType is the kind of a progress event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
)

// DefaultEventBuffer is the per-subscriber channel capacity.
const DefaultEventBuffer = 256

// ProgressEvent is published on the engine's feed at every stage boundary
// and after every record a stage moves. Start and complete events carry the
// progress of every started stage; progress events carry only the count and
// bytes of their own stage.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	Stage     Stage     `json:"stage"`
	Data      Snapshot  `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// feed broadcasts progress events to any number of subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type feed struct {
	mu          sync.RWMutex
	buffer      int
	subscribers []chan ProgressEvent
	dropped     atomic.Int64
}

func newFeed(buffer int) *feed {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &feed{buffer: buffer}
}

func (f *feed) subscribe() <-chan ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan ProgressEvent, f.buffer)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// unsubscribe removes ch and closes it. Unknown channels are ignored.
func (f *feed) unsubscribe(ch <-chan ProgressEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, sub := range f.subscribers {
		if (<-chan ProgressEvent)(sub) == ch {
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

func (f *feed) publish(event ProgressEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			f.dropped.Add(1)
		}
	}
}

func (f *feed) hasSubscribers() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) > 0
}
