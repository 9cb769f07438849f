package rooms

import (
	"time"
)

const (
	PhaseLobby   = "lobby"
	PhaseWaiting = "waiting"
)

// Settings are shared by every game. Games validate the fields they use.
type Settings struct {
	MinPlayers    int  `json:"minPlayers"`
	MaxPlayers    int  `json:"maxPlayers"`
	TimerDuration int  `json:"timerDuration"`
	MaxLives      int  `json:"maxLives"`
	VoiceMode     bool `json:"voiceMode"`
}

// GameData is the game-specific half of a room's state. Each game stores
// exactly one concrete type here and reads it back with Data.
type GameData interface {
	GameID() string
}

type GameState struct {
	Phase string
	Data  GameData
}

// Data returns the room's game data as T.
func Data[T GameData](r *Room) (T, bool) {
	t, ok := r.State.Data.(T)
	return t, ok
}

type Player struct {
	ID             string
	SocketID       string
	Name           string
	Connected      bool
	DisconnectedAt *time.Time
	IsHost         bool
	Spectator      bool

	// GameData belongs to the room's game and survives reconnection.
	GameData any
}

type Message struct {
	PlayerID string    `json:"playerId,omitempty"`
	Name     string    `json:"name,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
	System   bool      `json:"system,omitempty"`
}

type Room struct {
	Code         string
	GameID       string
	HostID       string
	Players      map[string]*Player
	State        GameState
	Settings     Settings
	CreatedAt    time.Time
	LastActivity time.Time
	Messages     []Message

	// Linked rooms belong to a session on the external platform and get a
	// grace period before deletion once empty.
	Linked          bool
	PlatformSession string

	order         []string
	pendingDelete *pendingTimer
}

// Members returns the room's players in join order.
func (r *Room) Members() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.Players[id]; ok {
			out = append(out, p)
		}
	}

	return out
}

func (r *Room) Host() *Player {
	return r.Players[r.HostID]
}

func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}

	return n
}

// DeletionPending reports whether the room is waiting out its grace period.
func (r *Room) DeletionPending() bool {
	return r.pendingDelete != nil
}

func (r *Room) dropFromOrder(id string) {
	dst := r.order[:0]
	for _, o := range r.order {
		if o != id {
			dst = append(dst, o)
		}
	}
	r.order = dst
}
