// Package rooms owns the registry of live rooms and the index from
// transient connection ids to stable player ids.
//
// Every lookup that feeds game logic goes through the stable player id.
// Connection ids change on every reconnect and are only ever used to find
// that id.
package rooms

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/clock"
)

const (
	CodeLength = 6

	DefaultDeleteGrace = 2 * time.Minute
	DefaultPlayerGrace = 2 * time.Minute
	DefaultIdleTimeout = 2 * time.Hour
	DefaultInviteTTL   = 24 * time.Hour

	messageLogSize = 50
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Options struct {
	DeleteGrace time.Duration
	PlayerGrace time.Duration
	IdleTimeout time.Duration
	InviteTTL   time.Duration
}

func (o Options) withDefaults() Options {
	if o.DeleteGrace <= 0 {
		o.DeleteGrace = DefaultDeleteGrace
	}
	if o.PlayerGrace <= 0 {
		o.PlayerGrace = DefaultPlayerGrace
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.InviteTTL <= 0 {
		o.InviteTTL = DefaultInviteTTL
	}
	return o
}

type Invite struct {
	Token     string
	RoomCode  string
	CreatedAt time.Time
}

type binding struct {
	code     string
	playerID string
}

type pendingTimer struct {
	timer clock.Timer
}

type removal struct {
	room   *Room
	player *Player
}

// events collects hook calls made while the lock is held so they can run
// after it is released.
type events struct {
	removed []removal
	deleted []*Room
}

type Manager struct {
	mu   deadlock.Mutex
	clk  clock.Clock
	opts Options
	log  zerolog.Logger

	rooms    map[string]*Room
	conns    map[string]binding
	invites  map[string]*Invite
	removals map[string]*pendingTimer

	playerRemoved func(*Room, *Player)
	roomDeleted   func(*Room)
}

func NewManager(clk clock.Clock, opts Options, log zerolog.Logger) *Manager {
	return &Manager{
		clk:      clk,
		opts:     opts.withDefaults(),
		log:      log,
		rooms:    make(map[string]*Room),
		conns:    make(map[string]binding),
		invites:  make(map[string]*Invite),
		removals: make(map[string]*pendingTimer),
	}
}

// OnPlayerRemoved registers fn to run whenever a player leaves a room for
// good, whether explicitly or after the disconnect grace period.
func (m *Manager) OnPlayerRemoved(fn func(*Room, *Player)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.playerRemoved = fn
}

// OnRoomDeleted registers fn to run after a room leaves the registry.
func (m *Manager) OnRoomDeleted(fn func(*Room)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roomDeleted = fn
}

func (m *Manager) CreateRoom(gameID string, host *Player, settings Settings, code string) (*Room, error) {
	if host == nil || host.ID == "" {
		return nil, apperr.Validation("host player id is required")
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if code == "" {
		code = m.newCodeLocked()
	} else {
		code = strings.ToUpper(strings.TrimSpace(code))
		if !validCode(code) {
			return nil, apperr.Validation("room code must be %d letters or digits", CodeLength)
		}
		if _, exists := m.rooms[code]; exists {
			return nil, apperr.Validation("room code %s is taken", code)
		}
	}

	if host.SocketID != "" {
		if _, bound := m.conns[host.SocketID]; bound {
			return nil, apperr.Validation("connection is already in a room")
		}
	}

	now := m.clk.Now()

	host.IsHost = true
	host.Connected = true
	host.DisconnectedAt = nil

	room := &Room{
		Code:         code,
		GameID:       gameID,
		HostID:       host.ID,
		Players:      map[string]*Player{host.ID: host},
		State:        GameState{Phase: PhaseLobby},
		Settings:     settings,
		CreatedAt:    now,
		LastActivity: now,
		order:        []string{host.ID},
	}
	m.rooms[code] = room

	if host.SocketID != "" {
		m.conns[host.SocketID] = binding{code: code, playerID: host.ID}
	}

	m.log.Info().Str("room", code).Str("game", gameID).Msg("GAMES: Created room")

	return room, nil
}

// AddPlayer adds p to the room, or merges it into the existing record when
// a player with the same stable id is already a member. The stored player
// is returned along with whether this was a reconnection.
func (m *Manager) AddPlayer(code string, p *Player) (*Player, bool, error) {
	if p == nil || p.ID == "" {
		return nil, false, apperr.Validation("player id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return nil, false, apperr.NotFound("room %s", code)
	}

	if p.SocketID != "" {
		if b, bound := m.conns[p.SocketID]; bound && (b.code != code || b.playerID != p.ID) {
			return nil, false, apperr.Validation("connection is already in a room")
		}
	}

	now := m.clk.Now()

	if existing, ok := room.Players[p.ID]; ok {
		if existing.SocketID != "" && existing.SocketID != p.SocketID {
			delete(m.conns, existing.SocketID)
		}

		existing.SocketID = p.SocketID
		existing.Connected = true
		existing.DisconnectedAt = nil
		if p.Name != "" {
			existing.Name = p.Name
		}

		if p.SocketID != "" {
			m.conns[p.SocketID] = binding{code: code, playerID: p.ID}
		}

		m.cancelRemovalLocked(code, p.ID)
		m.cancelDeleteLocked(room)
		room.LastActivity = now

		return existing, true, nil
	}

	if len(room.Players) >= room.Settings.MaxPlayers {
		return nil, false, apperr.Validation("room %s is full", code)
	}

	if room.State.Phase != PhaseLobby && room.State.Phase != PhaseWaiting {
		return nil, false, apperr.PhaseMismatch("room %s has already started", code)
	}

	p.IsHost = false
	p.Connected = true
	p.DisconnectedAt = nil

	room.Players[p.ID] = p
	room.order = append(room.order, p.ID)

	if p.SocketID != "" {
		m.conns[p.SocketID] = binding{code: code, playerID: p.ID}
	}

	if room.Host() == nil {
		m.transferHostLocked(room)
	}

	m.cancelDeleteLocked(room)
	room.LastActivity = now

	return p, false, nil
}

// Disconnect marks the player behind socketID as disconnected and starts
// its removal grace period. Reconnecting with the same stable id through
// AddPlayer cancels the removal.
func (m *Manager) Disconnect(socketID string) (*Room, *Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, p, ok := m.lookupLocked(socketID)
	if !ok {
		return nil, nil, apperr.NotFound("connection %s", socketID)
	}

	delete(m.conns, socketID)

	now := m.clk.Now()
	p.SocketID = ""
	p.Connected = false
	p.DisconnectedAt = &now

	key := removalKey(room.Code, p.ID)
	m.cancelRemovalLocked(room.Code, p.ID)

	pr := &pendingTimer{}
	code, playerID := room.Code, p.ID
	pr.timer = m.clk.AfterFunc(m.opts.PlayerGrace, func() {
		m.expirePlayer(code, playerID, pr)
	})
	m.removals[key] = pr

	return room, p, nil
}

// RemovePlayer removes the player behind socketID from its room.
func (m *Manager) RemovePlayer(socketID string) (*Room, *Player, error) {
	m.mu.Lock()

	room, p, ok := m.lookupLocked(socketID)
	if !ok {
		m.mu.Unlock()
		return nil, nil, apperr.NotFound("connection %s", socketID)
	}

	var ev events
	m.removePlayerLocked(room, p.ID, &ev)
	m.mu.Unlock()

	m.fire(ev)

	return room, p, nil
}

func (m *Manager) TransferHost(room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transferHostLocked(room)
}

func (m *Manager) Lookup(socketID string) (*Room, *Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookupLocked(socketID)
}

func (m *Manager) Get(code string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[strings.ToUpper(code)]
	return room, ok
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rooms)
}

func (m *Manager) Touch(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[code]; ok {
		room.LastActivity = m.clk.Now()
	}
}

func (m *Manager) SetLinked(code string, linked bool, platformSession string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return apperr.NotFound("room %s", code)
	}

	room.Linked = linked
	room.PlatformSession = platformSession

	return nil
}

func (m *Manager) UpdateSettings(code string, s Settings) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return apperr.NotFound("room %s", code)
	}

	if s.MaxPlayers < len(room.Players) {
		return apperr.Validation("maxPlayers %d is below the current member count %d", s.MaxPlayers, len(room.Players))
	}

	room.Settings = s
	room.LastActivity = m.clk.Now()

	return nil
}

// AppendMessage adds msg to the room's rolling log and returns it with its
// timestamp filled in.
func (m *Manager) AppendMessage(code string, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[code]
	if !ok {
		return Message{}, apperr.NotFound("room %s", code)
	}

	msg.At = m.clk.Now()
	room.Messages = append(room.Messages, msg)
	if over := len(room.Messages) - messageLogSize; over > 0 {
		room.Messages = append([]Message(nil), room.Messages[over:]...)
	}

	return msg, nil
}

func (m *Manager) GenerateInviteToken(code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[code]; !ok {
		return "", apperr.NotFound("room %s", code)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	m.invites[token] = &Invite{
		Token:     token,
		RoomCode:  code,
		CreatedAt: m.clk.Now(),
	}

	return token, nil
}

// ResolveInviteToken returns the room code for a live invite.
func (m *Manager) ResolveInviteToken(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[token]
	if !ok {
		return "", false
	}

	if m.inviteDeadLocked(inv, m.clk.Now()) {
		delete(m.invites, token)
		return "", false
	}

	return inv.RoomCode, true
}

// Sweep deletes rooms idle beyond the idle timeout along with expired or
// orphaned invites. It returns the number of rooms deleted.
func (m *Manager) Sweep() int {
	m.mu.Lock()

	now := m.clk.Now()
	cutoff := now.Add(-m.opts.IdleTimeout)

	var ev events
	for _, room := range m.rooms {
		if room.LastActivity.Before(cutoff) {
			m.deleteLocked(room, &ev)
		}
	}

	for token, inv := range m.invites {
		if m.inviteDeadLocked(inv, now) {
			delete(m.invites, token)
		}
	}

	m.mu.Unlock()

	m.fire(ev)

	if len(ev.deleted) > 0 {
		m.log.Info().Int("count", len(ev.deleted)).Msg("GAMES: Reaped idle rooms")
	}

	return len(ev.deleted)
}

func (m *Manager) inviteDeadLocked(inv *Invite, now time.Time) bool {
	if now.Sub(inv.CreatedAt) > m.opts.InviteTTL {
		return true
	}

	_, live := m.rooms[inv.RoomCode]
	return !live
}

func (m *Manager) lookupLocked(socketID string) (*Room, *Player, bool) {
	b, ok := m.conns[socketID]
	if !ok {
		return nil, nil, false
	}

	room, ok := m.rooms[b.code]
	if !ok {
		return nil, nil, false
	}

	p, ok := room.Players[b.playerID]
	if !ok {
		return nil, nil, false
	}

	return room, p, true
}

func (m *Manager) removePlayerLocked(room *Room, playerID string, ev *events) {
	p, ok := room.Players[playerID]
	if !ok {
		return
	}

	delete(room.Players, playerID)
	room.dropFromOrder(playerID)

	if p.SocketID != "" {
		delete(m.conns, p.SocketID)
	}
	m.cancelRemovalLocked(room.Code, playerID)

	wasHost := p.IsHost
	p.IsHost = false
	p.Connected = false

	ev.removed = append(ev.removed, removal{room: room, player: p})

	m.log.Info().Str("room", room.Code).Str("player", playerID).Msg("GAMES: Player left")

	if len(room.Players) == 0 {
		room.HostID = ""
		if room.Linked {
			m.scheduleDeleteLocked(room)
		} else {
			m.deleteLocked(room, ev)
		}
		return
	}

	if wasHost {
		m.transferHostLocked(room)
	}
}

func (m *Manager) transferHostLocked(room *Room) {
	var next *Player
	for _, p := range room.Members() {
		if p.Connected {
			next = p
			break
		}
	}
	if next == nil {
		if members := room.Members(); len(members) > 0 {
			next = members[0]
		}
	}

	for _, p := range room.Players {
		p.IsHost = false
	}

	if next == nil {
		room.HostID = ""
		return
	}

	next.IsHost = true
	room.HostID = next.ID
}

func (m *Manager) scheduleDeleteLocked(room *Room) {
	if room.pendingDelete != nil {
		return
	}

	pd := &pendingTimer{}
	code := room.Code
	pd.timer = m.clk.AfterFunc(m.opts.DeleteGrace, func() {
		m.deferredDelete(code, pd)
	})
	room.pendingDelete = pd

	m.log.Debug().Str("room", code).Dur("grace", m.opts.DeleteGrace).Msg("GAMES: Room empty, deletion scheduled")
}

func (m *Manager) cancelDeleteLocked(room *Room) {
	if room.pendingDelete == nil {
		return
	}

	room.pendingDelete.timer.Stop()
	room.pendingDelete = nil
}

func (m *Manager) deferredDelete(code string, pd *pendingTimer) {
	m.mu.Lock()

	room, ok := m.rooms[code]
	if !ok || room.pendingDelete != pd || len(room.Players) > 0 {
		m.mu.Unlock()
		return
	}

	var ev events
	m.deleteLocked(room, &ev)
	m.mu.Unlock()

	m.fire(ev)
}

func (m *Manager) expirePlayer(code, playerID string, pr *pendingTimer) {
	m.mu.Lock()

	key := removalKey(code, playerID)
	if m.removals[key] != pr {
		m.mu.Unlock()
		return
	}
	delete(m.removals, key)

	room, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return
	}

	p, ok := room.Players[playerID]
	if !ok || p.Connected {
		m.mu.Unlock()
		return
	}

	var ev events
	m.removePlayerLocked(room, playerID, &ev)
	m.mu.Unlock()

	m.fire(ev)
}

func (m *Manager) cancelRemovalLocked(code, playerID string) {
	key := removalKey(code, playerID)
	if pr, ok := m.removals[key]; ok {
		pr.timer.Stop()
		delete(m.removals, key)
	}
}

func (m *Manager) deleteLocked(room *Room, ev *events) {
	if _, ok := m.rooms[room.Code]; !ok {
		return
	}

	delete(m.rooms, room.Code)
	m.cancelDeleteLocked(room)

	for id, p := range room.Players {
		if p.SocketID != "" {
			delete(m.conns, p.SocketID)
		}
		m.cancelRemovalLocked(room.Code, id)
	}

	for token, inv := range m.invites {
		if inv.RoomCode == room.Code {
			delete(m.invites, token)
		}
	}

	ev.deleted = append(ev.deleted, room)

	m.log.Info().Str("room", room.Code).Msg("GAMES: Deleted room")
}

func (m *Manager) fire(ev events) {
	m.mu.Lock()
	removed, deleted := m.playerRemoved, m.roomDeleted
	m.mu.Unlock()

	if removed != nil {
		for _, r := range ev.removed {
			removed(r.room, r.player)
		}
	}

	if deleted != nil {
		for _, room := range ev.deleted {
			deleted(room)
		}
	}
}

// newCodeLocked generates a crypto-random room code that does not collide
// with a live room.
func (m *Manager) newCodeLocked() string {
	for {
		buf := make([]byte, CodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, CodeLength)
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(out)

		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}

	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}

	return true
}

func removalKey(code, playerID string) string {
	return code + "/" + playerID
}

// ValidateSettings checks the fields every game relies on.
func ValidateSettings(s Settings) error {
	if s.MinPlayers < 1 {
		return apperr.Validation("minPlayers must be at least 1")
	}
	if s.MaxPlayers < s.MinPlayers {
		return apperr.Validation("maxPlayers (%d) must be at least minPlayers (%d)", s.MaxPlayers, s.MinPlayers)
	}

	return nil
}
