package services

import "sync"

type emittedEvent struct {
	UserID string
	Event  string
	Data   any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (r *recordingEmitter) EmitToUser(userID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emittedEvent{UserID: userID, Event: event, Data: data})
}

func (r *recordingEmitter) Events() []emittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emittedEvent, len(r.events))
	copy(out, r.events)
	return out
}

type panickingEmitter struct{}

func (panickingEmitter) EmitToUser(string, string, any) {
	panic("transport exploded")
}
