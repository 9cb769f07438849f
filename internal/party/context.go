package party

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Seednode/partyhost/internal/rooms"
)

const asyncTimeout = 30 * time.Second

// RoomContext is a plugin's view of one room for the duration of a single
// handler, hook or timer callback. It must not be kept past that call.
type RoomContext struct {
	d        *Dispatcher
	room     *rooms.Room
	rt       *runtime
	skipSync bool
}

func newRoomContext(d *Dispatcher, room *rooms.Room, rt *runtime) *RoomContext {
	return &RoomContext{d: d, room: room, rt: rt}
}

func (rc *RoomContext) Room() *rooms.Room {
	return rc.room
}

// Player looks a member up by stable id.
func (rc *RoomContext) Player(id string) (*rooms.Player, bool) {
	p, ok := rc.room.Players[id]
	return p, ok
}

// PlayerByConn resolves a connection id to the member currently using it.
func (rc *RoomContext) PlayerByConn(connID string) (*rooms.Player, bool) {
	if connID == "" {
		return nil, false
	}

	for _, p := range rc.room.Players {
		if p.SocketID == connID {
			return p, true
		}
	}

	return nil, false
}

func (rc *RoomContext) Members() []*rooms.Player {
	return rc.room.Members()
}

func (rc *RoomContext) IsHost(connID string) bool {
	p, ok := rc.PlayerByConn(connID)
	return ok && p.IsHost
}

func (rc *RoomContext) Now() time.Time {
	return rc.d.clk.Now()
}

func (rc *RoomContext) Timers() *Timers {
	return rc.rt.timers
}

func (rc *RoomContext) Guards() *Guards {
	return rc.rt.guards
}

func (rc *RoomContext) Logger() *zerolog.Logger {
	log := rc.d.log.With().Str("room", rc.room.Code).Str("game", rc.room.GameID).Logger()
	return &log
}

// UpdateSettings validates and stores new room settings.
func (rc *RoomContext) UpdateSettings(s rooms.Settings) error {
	if err := rc.rt.plugin.ValidateSettings(s); err != nil {
		return err
	}

	return rc.d.rooms.UpdateSettings(rc.room.Code, s)
}

func (rc *RoomContext) EmitToRoom(event string, payload any) {
	rc.d.publish(RoomTarget(rc.room.Code), event, payload)
}

func (rc *RoomContext) EmitToSocket(connID, event string, payload any) {
	rc.d.publish(ConnTarget(connID), event, payload)
}

// EmitToPlayer sends to a member's current connection, if it has one.
func (rc *RoomContext) EmitToPlayer(playerID, event string, payload any) {
	p, ok := rc.room.Players[playerID]
	if !ok || !p.Connected || p.SocketID == "" {
		return
	}

	rc.d.publish(ConnTarget(p.SocketID), event, payload)
}

// BroadcastState sends every connected member its own view of the room.
func (rc *RoomContext) BroadcastState() {
	rc.d.broadcastState(rc.room, rc.rt)
}

// SkipSync stops the dispatcher from broadcasting state after the current
// handler returns.
func (rc *RoomContext) SkipSync() {
	rc.skipSync = true
}

// Async runs work off the event loop. If work returns a callback, it runs
// back on the event loop with a fresh context, unless the room has been
// deleted in the meantime.
func (rc *RoomContext) Async(work func(ctx context.Context) func(rc *RoomContext)) {
	d := rc.d
	room := rc.room

	d.async.Add(1)
	go func() {
		defer d.async.Done()

		ctx, cancel := context.WithTimeout(d.ctx, asyncTimeout)
		defer cancel()

		then := work(ctx)
		if then == nil {
			return
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		live, ok := d.rooms.Get(room.Code)
		rt := d.runtimes[room.Code]
		if !ok || live != room || rt == nil {
			d.log.Debug().Str("room", room.Code).Msg("GAMES: Dropped async result for deleted room")
			return
		}

		if err := d.safeCall(func() error {
			then(newRoomContext(d, live, rt))
			return nil
		}); err != nil {
			d.log.Error().Err(err).Str("room", room.Code).Msg("GAMES: Async callback failed")
		}
	}()
}
