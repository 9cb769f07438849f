// Package partytest provides helpers for testing games against a real
// dispatcher.
package partytest

import (
	"sync"
)

type Message struct {
	Conn    string
	Event   string
	Payload any
}

// Recorder is a Sender that keeps every outbound message in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Send(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, Message{Conn: connID, Event: event, Payload: payload})
}

// To returns the messages sent to connID with the given event, oldest
// first.
func (r *Recorder) To(connID, event string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, m := range r.msgs {
		if m.Conn == connID && m.Event == event {
			out = append(out, m)
		}
	}

	return out
}

// Last returns the newest payload sent to connID with the given event.
func (r *Recorder) Last(connID, event string) (any, bool) {
	msgs := r.To(connID, event)
	if len(msgs) == 0 {
		return nil, false
	}

	return msgs[len(msgs)-1].Payload, true
}

// Events lists every event name sent to connID, oldest first.
func (r *Recorder) Events(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, m := range r.msgs {
		if m.Conn == connID {
			out = append(out, m.Event)
		}
	}

	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = nil
}
