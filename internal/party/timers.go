package party

import (
	"fmt"
	"time"

	"github.com/Seednode/partyhost/internal/clock"
)

type TimerFunc func(rc *RoomContext)

// Timers are a room's scheduled callbacks, keyed by purpose. Setting a key
// replaces whatever was scheduled under it, and a callback whose key was
// cleared or replaced never runs.
type Timers struct {
	d       *Dispatcher
	code    string
	entries map[string]*timerEntry
}

type timerEntry struct {
	timer clock.Timer
	every time.Duration
	fn    TimerFunc
}

func newTimers(d *Dispatcher, code string) *Timers {
	return &Timers{
		d:       d,
		code:    code,
		entries: make(map[string]*timerEntry),
	}
}

// After runs fn once after delay.
func (t *Timers) After(key string, delay time.Duration, fn TimerFunc) {
	t.Clear(key)

	e := &timerEntry{fn: fn}
	t.entries[key] = e
	t.arm(key, e, delay)
}

// Every runs fn each interval until the key is cleared.
func (t *Timers) Every(key string, interval time.Duration, fn TimerFunc) {
	t.Clear(key)

	e := &timerEntry{fn: fn, every: interval}
	t.entries[key] = e
	t.arm(key, e, interval)
}

func (t *Timers) Active(key string) bool {
	_, ok := t.entries[key]
	return ok
}

func (t *Timers) Clear(key string) {
	if e, ok := t.entries[key]; ok {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *Timers) ClearAll() {
	for key := range t.entries {
		t.Clear(key)
	}
}

func (t *Timers) arm(key string, e *timerEntry, delay time.Duration) {
	e.timer = t.d.clk.AfterFunc(delay, func() {
		t.d.mu.Lock()
		defer t.d.mu.Unlock()

		t.fire(key, e)
	})
}

// fire runs with the dispatcher lock held.
func (t *Timers) fire(key string, e *timerEntry) {
	if t.entries[key] != e {
		return
	}

	room, ok := t.d.rooms.Get(t.code)
	rt := t.d.runtimes[t.code]
	if !ok || rt == nil || rt.timers != t {
		delete(t.entries, key)
		return
	}

	if e.every == 0 {
		delete(t.entries, key)
	}

	if err := t.run(key, e, newRoomContext(t.d, room, rt)); err != nil {
		t.d.log.Error().Err(err).Str("room", t.code).Str("timer", key).Msg("GAMES: Timer callback failed")
		t.Clear(key)
		return
	}

	if e.every > 0 && t.entries[key] == e {
		t.arm(key, e, e.every)
	}
}

func (t *Timers) run(key string, e *timerEntry, rc *RoomContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in timer %q: %v", key, r)
		}
	}()

	e.fn(rc)

	return nil
}

// Guards make a critical section idempotent: a second TryEnter for the same
// name fails until Exit is called.
type Guards struct {
	held map[string]bool
}

func newGuards() *Guards {
	return &Guards{held: make(map[string]bool)}
}

func (g *Guards) TryEnter(name string) bool {
	if g.held[name] {
		return false
	}
	g.held[name] = true

	return true
}

func (g *Guards) Exit(name string) {
	delete(g.held, name)
}

func (g *Guards) Held(name string) bool {
	return g.held[name]
}
