package wordduel

import (
	"github.com/Seednode/partyhost/internal/rooms"
)

const (
	RoleDuelist   = "duelist"
	RoleSpectator = "spectator"
)

type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
	Spectator bool   `json:"spectator"`
	Ready     bool   `json:"ready"`
	Slot      int    `json:"slot,omitempty"`
}

// DuelistView is one bound player as a particular viewer may see them.
// Word and LiveWord are nil whenever the viewer is not entitled to them.
type DuelistView struct {
	PlayerID  string  `json:"playerId"`
	Name      string  `json:"name"`
	Connected bool    `json:"connected"`
	Submitted bool    `json:"submitted"`
	Word      *string `json:"word"`
	LiveWord  *string `json:"liveWord"`
	Vote      *string `json:"vote"`
	Revote    *string `json:"revote"`
}

type ViewerInfo struct {
	PlayerID string `json:"playerId,omitempty"`
	Role     string `json:"role"`
	Slot     int    `json:"slot,omitempty"`
	IsHost   bool   `json:"isHost"`
}

type View struct {
	Code     string          `json:"code"`
	GameID   string          `json:"gameId"`
	HostID   string          `json:"hostId"`
	Phase    string          `json:"phase"`
	Settings rooms.Settings  `json:"settings"`
	Players  []PlayerView    `json:"players"`
	Messages []rooms.Message `json:"messages"`
	Viewer   ViewerInfo      `json:"viewer"`

	Round              int           `json:"round"`
	LivesRemaining     int           `json:"livesRemaining"`
	MaxLives           int           `json:"maxLives"`
	TimerDuration      int           `json:"timerDuration"`
	TimeRemaining      int           `json:"timeRemaining"`
	CountdownRemaining int           `json:"countdownRemaining"`
	Paused             bool          `json:"paused"`
	VoiceMode          bool          `json:"voiceMode"`
	Disputed           bool          `json:"disputed"`
	Duelists           []DuelistView `json:"duelists"`
	History            []RoundResult `json:"history"`
	EndReason          string        `json:"endReason,omitempty"`
}

// SerializeRoom builds the view for the viewer behind viewerConnID.
//
// Before a round is revealed a duelist sees only their own committed word
// and never the opponent's, while everyone else sees only the duelists'
// live typing.
func (g *Game) SerializeRoom(room *rooms.Room, viewerConnID string) any {
	st, ok := rooms.Data[*State](room)
	if !ok {
		st = newState()
	}

	viewer := viewerFor(room, viewerConnID)
	viewerSlot := st.Slot(viewer.ID)

	v := View{
		Code:     room.Code,
		GameID:   room.GameID,
		HostID:   room.HostID,
		Phase:    room.State.Phase,
		Settings: room.Settings,
		Messages: append([]rooms.Message(nil), room.Messages...),
		Viewer: ViewerInfo{
			PlayerID: viewer.ID,
			Role:     RoleSpectator,
			Slot:     viewerSlot,
			IsHost:   viewer.IsHost,
		},

		Round:              st.Round,
		LivesRemaining:     st.LivesRemaining,
		MaxLives:           st.MaxLives,
		TimerDuration:      st.TimerDuration,
		TimeRemaining:      st.TimeRemaining,
		CountdownRemaining: st.CountdownRemaining,
		Paused:             st.Paused,
		VoiceMode:          st.VoiceMode,
		Disputed:           st.Disputed,
		History:            append([]RoundResult(nil), st.History...),
		EndReason:          st.EndReason,
	}
	if viewerSlot != 0 {
		v.Viewer.Role = RoleDuelist
	}

	for _, p := range room.Members() {
		pd, _ := p.GameData.(*PlayerData)
		v.Players = append(v.Players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Connected: p.Connected,
			IsHost:    p.IsHost,
			Spectator: p.Spectator,
			Ready:     pd != nil && pd.Ready,
			Slot:      st.Slot(p.ID),
		})
	}

	if st.Player1ID == "" {
		return v
	}

	revealed := room.State.Phase != PhaseRoundPrep && room.State.Phase != PhaseWordInput

	for _, id := range []string{st.Player1ID, st.Player2ID} {
		dv := DuelistView{
			PlayerID:  id,
			Submitted: st.Submitted[id],
		}
		if p, ok := room.Players[id]; ok {
			dv.Name = p.Name
			dv.Connected = p.Connected
		}

		self := id == viewer.ID

		if word, ok := st.Words[id]; ok && (revealed || self) {
			dv.Word = &word
		}
		if vote, ok := st.Votes[id]; ok && (revealed || self || st.Disputed) {
			dv.Vote = &vote
		}
		if vote, ok := st.DisputeVotes[id]; ok && (revealed || self) {
			dv.Revote = &vote
		}
		if word, ok := st.LiveWords[id]; ok && viewerSlot == 0 && !st.Submitted[id] && room.State.Phase == PhaseWordInput {
			dv.LiveWord = &word
		}

		v.Duelists = append(v.Duelists, dv)
	}

	return v
}

type viewerIdentity struct {
	ID     string
	IsHost bool
}

func viewerFor(room *rooms.Room, connID string) viewerIdentity {
	if connID == "" {
		return viewerIdentity{}
	}

	for _, p := range room.Players {
		if p.SocketID == connID {
			return viewerIdentity{ID: p.ID, IsHost: p.IsHost}
		}
	}

	return viewerIdentity{}
}
