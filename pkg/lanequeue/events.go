package lanequeue

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Named queue events delivered to subscribers.
const (
	EventTaskEnqueued  = "task:enqueued"
	EventTaskStarted   = "task:started"
	EventTaskCompleted = "task:completed"
	EventTaskFailed    = "task:failed"
	EventTaskCancelled = "task:cancelled"
	EventLaneCreated   = "lane:created"
	EventLanePaused    = "lane:paused"
	EventLaneResumed   = "lane:resumed"
	EventLaneDrained   = "lane:drained"
)

// Event describes a queue state change
type Event struct {
	Type   string                 // One of the Event* constants
	Lane   string                 // Lane identifier
	TaskID string                 // Task identifier, empty for lane events
	Err    error                  // Set for task:failed and task:cancelled
	Data   map[string]interface{} // Additional event data
}

// Listener is a function that handles queue events
type Listener func(event Event)

type subscriber struct {
	id string
	fn Listener
}

// On registers a listener for one event type and returns a subscriber id for
// Off. Listeners are invoked synchronously on the emitting goroutine and must
// not block.
func (q *Queue) On(eventType string, fn Listener) string {
	id := gonanoid.Must()

	q.subMu.Lock()
	defer q.subMu.Unlock()

	q.subscribers[eventType] = append(q.subscribers[eventType], subscriber{id: id, fn: fn})
	q.subscriberTypes[id] = eventType
	return id
}

// Off removes a single listener by subscriber id
func (q *Queue) Off(id string) bool {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	eventType, ok := q.subscriberTypes[id]
	if !ok {
		return false
	}
	delete(q.subscriberTypes, id)

	subs := q.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			q.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(q.subscribers[eventType]) == 0 {
		delete(q.subscribers, eventType)
	}
	return true
}

// emit delivers an event synchronously to all listeners for its type
func (q *Queue) emit(event Event) {
	q.subMu.RLock()
	subs := make([]subscriber, len(q.subscribers[event.Type]))
	copy(subs, q.subscribers[event.Type])
	q.subMu.RUnlock()

	for _, sub := range subs {
		sub.fn(event)
	}
}
