// Package party hosts many turn-based games in one process. Each game is a
// Plugin; the Dispatcher routes inbound events to the plugin that owns the
// sender's room and pushes per-viewer state back out.
package party

import (
	"encoding/json"
	"strings"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/rooms"
)

// Handler processes one inbound event for a room. Returned errors are
// reported to the sender only.
type Handler func(rc *RoomContext, connID string, payload json.RawMessage) error

type Plugin interface {
	ID() string
	DefaultSettings() rooms.Settings
	ValidateSettings(s rooms.Settings) error

	OnRoomCreate(rc *RoomContext)
	OnPlayerJoin(rc *RoomContext, p *rooms.Player, reconnecting bool)
	OnPlayerDisconnected(rc *RoomContext, p *rooms.Player)
	OnPlayerLeave(rc *RoomContext, p *rooms.Player)
	OnRoomDestroy(rc *RoomContext)

	Handlers() map[string]Handler

	// SerializeRoom builds the view of room that the viewer behind
	// viewerConnID is allowed to see.
	SerializeRoom(room *rooms.Room, viewerConnID string) any
}

// Sender delivers one event to one connection. The transport implements it.
type Sender interface {
	Send(connID, event string, payload any)
}

// Target addresses either every connected member of a room or a single
// connection.
type Target struct {
	Room string
	Conn string
}

func RoomTarget(code string) Target {
	return Target{Room: code}
}

func ConnTarget(connID string) Target {
	return Target{Conn: connID}
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode unmarshals an event payload into v. An empty payload leaves v
// untouched.
func Decode(payload json.RawMessage, v any) error {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Validation("malformed payload: %v", err)
	}

	return nil
}

// MergeSettings fills the zero fields of s from defaults.
func MergeSettings(defaults rooms.Settings, s *rooms.Settings) rooms.Settings {
	if s == nil {
		return defaults
	}

	out := *s
	if out.MinPlayers == 0 {
		out.MinPlayers = defaults.MinPlayers
	}
	if out.MaxPlayers == 0 {
		out.MaxPlayers = defaults.MaxPlayers
	}
	if out.TimerDuration == 0 {
		out.TimerDuration = defaults.TimerDuration
	}
	if out.MaxLives == 0 {
		out.MaxLives = defaults.MaxLives
	}

	return out
}
