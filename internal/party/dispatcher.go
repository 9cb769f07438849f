package party

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/clock"
	"github.com/Seednode/partyhost/internal/rooms"
	"github.com/Seednode/partyhost/internal/sessions"
)

const (
	EventRoomJoined = "room:joined"
	EventRoomLeft   = "room:left"
	EventRoomState  = "room:state"
	EventRoomLeave  = "room:leave"
	EventChat       = "chat:message"
	EventError      = "error"

	maxChatLength = 280
	defaultName   = "Player"
)

type Config struct {
	Rooms      rooms.Options
	SessionTTL time.Duration
}

// runtime is the dispatcher's per-room bookkeeping.
type runtime struct {
	plugin Plugin
	timers *Timers
	guards *Guards
}

// Dispatcher is the single event loop for every room. All room state is
// read and written with mu held, whether from an inbound event, a timer or
// an async callback.
type Dispatcher struct {
	mu deadlock.Mutex

	clk      clock.Clock
	out      Sender
	log      zerolog.Logger
	rooms    *rooms.Manager
	sessions *sessions.Manager
	plugins  map[string]Plugin
	runtimes map[string]*runtime

	ctx    context.Context
	cancel context.CancelFunc
	async  sync.WaitGroup
}

// loopClock wraps a clock so timer callbacks run on the event loop.
type loopClock struct {
	d *Dispatcher
}

func (c loopClock) Now() time.Time {
	return c.d.clk.Now()
}

func (c loopClock) AfterFunc(delay time.Duration, f func()) clock.Timer {
	return c.d.clk.AfterFunc(delay, func() {
		c.d.mu.Lock()
		defer c.d.mu.Unlock()

		f()
	})
}

func New(cfg Config, clk clock.Clock, out Sender, log zerolog.Logger, plugins ...Plugin) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		clk:      clk,
		out:      out,
		log:      log,
		plugins:  make(map[string]Plugin, len(plugins)),
		runtimes: make(map[string]*runtime),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, p := range plugins {
		d.plugins[p.ID()] = p
	}

	loop := loopClock{d: d}
	d.rooms = rooms.NewManager(loop, cfg.Rooms, log)
	d.sessions = sessions.NewManager(loop, cfg.SessionTTL, log)

	// Both hooks only ever fire with mu already held.
	d.rooms.OnPlayerRemoved(d.playerRemoved)
	d.rooms.OnRoomDeleted(d.roomDeleted)

	return d
}

// Games lists the registered game ids.
func (d *Dispatcher) Games() []string {
	ids := make([]string, 0, len(d.plugins))
	for id := range d.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

type CreateRequest struct {
	GameID          string          `json:"gameId"`
	Name            string          `json:"name"`
	Code            string          `json:"code,omitempty"`
	Settings        *rooms.Settings `json:"settings,omitempty"`
	Linked          bool            `json:"linked,omitempty"`
	PlatformSession string          `json:"platformSession,omitempty"`
	ExternalToken   string          `json:"externalToken,omitempty"`

	// PlayerID is the caller's stable id, taken from its cookie rather than
	// the payload.
	PlayerID string `json:"-"`
}

type JoinRequest struct {
	Code          string `json:"code,omitempty"`
	Invite        string `json:"invite,omitempty"`
	Name          string `json:"name"`
	SessionToken  string `json:"sessionToken,omitempty"`
	ExternalToken string `json:"externalToken,omitempty"`
	Spectator     bool   `json:"spectator,omitempty"`

	PlayerID string `json:"-"`
}

type Joined struct {
	Code         string `json:"code"`
	PlayerID     string `json:"playerId"`
	SessionToken string `json:"sessionToken"`
	Reconnected  bool   `json:"reconnected"`
}

// CreateRoom creates a room for the requested game with the caller as its
// host.
func (d *Dispatcher) CreateRoom(connID string, req CreateRequest) (Joined, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	joined, err := d.createRoomLocked(connID, req)
	if err != nil {
		d.sendError(connID, err)
	}

	return joined, err
}

func (d *Dispatcher) createRoomLocked(connID string, req CreateRequest) (Joined, error) {
	if _, _, bound := d.rooms.Lookup(connID); bound {
		return Joined{}, apperr.Validation("connection is already in a room")
	}

	plugin, ok := d.plugins[req.GameID]
	if !ok {
		return Joined{}, apperr.NotFound("game %q", req.GameID)
	}

	settings := MergeSettings(plugin.DefaultSettings(), req.Settings)
	if err := plugin.ValidateSettings(settings); err != nil {
		return Joined{}, err
	}

	host := &rooms.Player{
		ID:       playerIDOrNew(req.PlayerID),
		SocketID: connID,
		Name:     cleanName(req.Name),
	}

	room, err := d.rooms.CreateRoom(plugin.ID(), host, settings, req.Code)
	if err != nil {
		return Joined{}, err
	}

	if req.Linked {
		if err := d.rooms.SetLinked(room.Code, true, req.PlatformSession); err != nil {
			return Joined{}, err
		}
	}

	rt := &runtime{
		plugin: plugin,
		timers: newTimers(d, room.Code),
		guards: newGuards(),
	}
	d.runtimes[room.Code] = rt

	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error {
		plugin.OnRoomCreate(rc)
		plugin.OnPlayerJoin(rc, host, false)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("room", room.Code).Msg("GAMES: Room setup failed")
	}

	joined := Joined{
		Code:         room.Code,
		PlayerID:     host.ID,
		SessionToken: d.sessions.CreateSession(host.ID, room.Code, req.ExternalToken),
	}

	d.out.Send(connID, EventRoomJoined, joined)
	d.broadcastState(room, rt)

	return joined, nil
}

// JoinRoom adds the caller to a room by code or invite token. A valid
// session token for the same room restores the caller's previous identity;
// anything else degrades to a fresh join.
func (d *Dispatcher) JoinRoom(connID string, req JoinRequest) (Joined, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	joined, err := d.joinRoomLocked(connID, req)
	if err != nil {
		d.sendError(connID, err)
	}

	return joined, err
}

func (d *Dispatcher) joinRoomLocked(connID string, req JoinRequest) (Joined, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Invite != "" {
		resolved, ok := d.rooms.ResolveInviteToken(req.Invite)
		if !ok {
			return Joined{}, apperr.NotFound("invite")
		}
		code = resolved
	}
	if code == "" {
		return Joined{}, apperr.Validation("room code is required")
	}

	room, ok := d.rooms.Get(code)
	if !ok {
		return Joined{}, apperr.NotFound("room %s", code)
	}
	code = room.Code

	playerID := req.PlayerID
	if req.SessionToken != "" {
		s, err := d.sessions.ValidateSession(req.SessionToken)
		switch {
		case err != nil:
			d.log.Debug().Err(err).Str("room", code).Msg("GAMES: Session rejected, joining fresh")
		case s.RoomCode != code:
			d.log.Debug().Str("room", code).Msg("GAMES: Session belongs to another room, joining fresh")
		default:
			playerID = s.PlayerID
		}
	}

	candidate := &rooms.Player{
		ID:        playerIDOrNew(playerID),
		SocketID:  connID,
		Name:      strings.TrimSpace(req.Name),
		Spectator: req.Spectator,
	}

	p, reconnected, err := d.rooms.AddPlayer(code, candidate)
	if err != nil {
		return Joined{}, err
	}
	if p.Name == "" {
		p.Name = defaultName
	}

	rt := d.runtimes[code]
	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error {
		rt.plugin.OnPlayerJoin(rc, p, reconnected)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("room", code).Msg("GAMES: Join hook failed")
	}

	joined := Joined{
		Code:         code,
		PlayerID:     p.ID,
		SessionToken: d.sessions.CreateSession(p.ID, code, req.ExternalToken),
		Reconnected:  reconnected,
	}

	d.out.Send(connID, EventRoomJoined, joined)

	if !reconnected {
		d.systemMessage(room, p.Name+" joined")
	}
	d.broadcastState(room, rt)

	d.log.Debug().Str("room", code).Str("player", p.ID).Bool("reconnected", reconnected).Msg("GAMES: Player joined")

	return joined, nil
}

// Leave removes the caller from its room for good.
func (d *Dispatcher) Leave(connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.leaveLocked(connID)
}

func (d *Dispatcher) leaveLocked(connID string) error {
	room, p, err := d.rooms.RemovePlayer(connID)
	if err != nil {
		return err
	}

	// A deliberate leave gives up the seat, so the reconnection token goes too.
	if s, ok := d.sessions.SessionFor(p.ID); ok && s.RoomCode == room.Code {
		d.sessions.DeleteSession(s.Token)
	}

	d.out.Send(connID, EventRoomLeft, struct{}{})

	return nil
}

// Disconnect is called by the transport when a connection drops. The
// player keeps its seat for the grace period.
func (d *Dispatcher) Disconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, p, err := d.rooms.Disconnect(connID)
	if err != nil {
		return
	}

	rt := d.runtimes[room.Code]
	if rt == nil {
		return
	}

	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error {
		rt.plugin.OnPlayerDisconnected(rc, p)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("room", room.Code).Msg("GAMES: Disconnect hook failed")
	}

	d.broadcastState(room, rt)
}

// Dispatch routes one inbound event from connID. Failures are reported to
// the sender only and returned for the transport's logs.
func (d *Dispatcher) Dispatch(connID, event string, payload json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.dispatchLocked(connID, event, payload)
	if err != nil {
		d.sendError(connID, err)
	}

	return err
}

func (d *Dispatcher) dispatchLocked(connID, event string, payload json.RawMessage) error {
	room, p, ok := d.rooms.Lookup(connID)
	if !ok {
		return apperr.NotFound("not in a room")
	}

	d.rooms.Touch(room.Code)

	switch event {
	case EventRoomLeave:
		return d.leaveLocked(connID)
	case EventChat:
		return d.chat(room, p, payload)
	}

	rt := d.runtimes[room.Code]
	if rt == nil {
		return apperr.NotFound("room %s", room.Code)
	}

	h, ok := rt.plugin.Handlers()[event]
	if !ok {
		return apperr.Validation("unknown event %q", event)
	}

	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error { return h(rc, connID, payload) }); err != nil {
		return err
	}

	if !rc.skipSync {
		d.broadcastState(room, rt)
	}

	return nil
}

type chatPayload struct {
	Text string `json:"text"`
}

func (d *Dispatcher) chat(room *rooms.Room, p *rooms.Player, payload json.RawMessage) error {
	var in chatPayload
	if err := Decode(payload, &in); err != nil {
		return err
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return apperr.Validation("message is empty")
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		return apperr.Validation("message is longer than %d characters", maxChatLength)
	}

	msg, err := d.rooms.AppendMessage(room.Code, rooms.Message{
		PlayerID: p.ID,
		Name:     p.Name,
		Text:     text,
	})
	if err != nil {
		return err
	}

	d.publish(RoomTarget(room.Code), EventChat, msg)

	return nil
}

func (d *Dispatcher) systemMessage(room *rooms.Room, text string) {
	msg, err := d.rooms.AppendMessage(room.Code, rooms.Message{Text: text, System: true})
	if err != nil {
		return
	}

	d.publish(RoomTarget(room.Code), EventChat, msg)
}

// CreateInvite mints a shareable token for a live room.
func (d *Dispatcher) CreateInvite(code string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms.Get(code)
	if !ok {
		return "", apperr.NotFound("room %s", code)
	}

	return d.rooms.GenerateInviteToken(room.Code)
}

func (d *Dispatcher) ResolveInvite(token string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rooms.ResolveInviteToken(token)
}

type Summary struct {
	Code      string    `json:"code"`
	GameID    string    `json:"gameId"`
	Phase     string    `json:"phase"`
	Players   int       `json:"players"`
	Connected int       `json:"connected"`
	Max       int       `json:"maxPlayers"`
	Linked    bool      `json:"linked"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary returns public, non-game-specific facts about a room.
func (d *Dispatcher) RoomSummary(code string) (Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms.Get(code)
	if !ok {
		return Summary{}, apperr.NotFound("room %s", code)
	}

	return Summary{
		Code:      room.Code,
		GameID:    room.GameID,
		Phase:     room.State.Phase,
		Players:   len(room.Players),
		Connected: room.ConnectedCount(),
		Max:       room.Settings.MaxPlayers,
		Linked:    room.Linked,
		CreatedAt: room.CreatedAt,
	}, nil
}

// WithRoom runs fn on the event loop against a live room.
func (d *Dispatcher) WithRoom(code string, fn func(*rooms.Room)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms.Get(code)
	if !ok {
		return false
	}
	fn(room)

	return true
}

type Stats struct {
	Rooms    int `json:"rooms"`
	Sessions int `json:"sessions"`
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{Rooms: d.rooms.Count(), Sessions: d.sessions.Count()}
}

// Sweep expires idle rooms, dead invites and idle sessions.
func (d *Dispatcher) Sweep() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rooms.Sweep(), d.sessions.Sweep()
}

func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			roomCount, sessionCount := d.Sweep()
			if roomCount > 0 || sessionCount > 0 {
				d.log.Info().Int("rooms", roomCount).Int("sessions", sessionCount).Msg("GAMES: Swept idle state")
			}
		}
	}
}

// Wait blocks until every in-flight async job has finished.
func (d *Dispatcher) Wait() {
	d.async.Wait()
}

// Close cancels in-flight async jobs and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.async.Wait()
}

// playerRemoved runs with mu held.
func (d *Dispatcher) playerRemoved(room *rooms.Room, p *rooms.Player) {
	rt := d.runtimes[room.Code]
	if rt == nil {
		return
	}

	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error {
		rt.plugin.OnPlayerLeave(rc, p)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("room", room.Code).Msg("GAMES: Leave hook failed")
	}

	if live, ok := d.rooms.Get(room.Code); ok && live == room {
		d.systemMessage(room, p.Name+" left")
		d.broadcastState(room, rt)
	}
}

// roomDeleted runs with mu held.
func (d *Dispatcher) roomDeleted(room *rooms.Room) {
	rt := d.runtimes[room.Code]
	if rt == nil {
		return
	}

	rc := newRoomContext(d, room, rt)
	if err := d.safeCall(func() error {
		rt.plugin.OnRoomDestroy(rc)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("room", room.Code).Msg("GAMES: Destroy hook failed")
	}

	rt.timers.ClearAll()
	delete(d.runtimes, room.Code)

	if n := d.sessions.DeleteSessionsForRoom(room.Code); n > 0 {
		d.log.Debug().Str("room", room.Code).Int("sessions", n).Msg("GAMES: Revoked sessions for deleted room")
	}
}

func (d *Dispatcher) broadcastState(room *rooms.Room, rt *runtime) {
	for _, p := range room.Members() {
		if !p.Connected || p.SocketID == "" {
			continue
		}

		d.out.Send(p.SocketID, EventRoomState, rt.plugin.SerializeRoom(room, p.SocketID))
	}
}

// Publish delivers an event to a socket, or to every connected member of a
// room.
func (d *Dispatcher) Publish(target Target, event string, payload any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.publish(target, event, payload)
}

func (d *Dispatcher) publish(target Target, event string, payload any) {
	if target.Conn != "" {
		d.out.Send(target.Conn, event, payload)
		return
	}

	room, ok := d.rooms.Get(target.Room)
	if !ok {
		return
	}

	for _, p := range room.Members() {
		if p.Connected && p.SocketID != "" {
			d.out.Send(p.SocketID, event, payload)
		}
	}
}

func (d *Dispatcher) sendError(connID string, err error) {
	if connID == "" {
		return
	}

	d.out.Send(connID, EventError, ErrorPayload{Code: apperr.Code(err), Message: err.Error()})
}

func (d *Dispatcher) safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("GAMES: Recovered from plugin panic")
			err = errors.New("internal error")
		}
	}()

	return fn()
}

func playerIDOrNew(id string) string {
	if id != "" {
		return id
	}

	return uuid.NewString()
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}

	return name
}
