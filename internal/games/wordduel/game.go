package wordduel

import (
	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/party"
	"github.com/Seednode/partyhost/internal/rewards"
	"github.com/Seednode/partyhost/internal/rooms"
)

type Options struct {
	// TimerMin and TimerMax bound the per-round timer, in seconds.
	TimerMin int
	TimerMax int

	Rewards rewards.Granter
}

// Game implements party.Plugin. It holds no per-room state; everything a
// room needs lives in its State and its party.RoomContext.
type Game struct {
	opts     Options
	handlers map[string]party.Handler
}

func New(opts Options) *Game {
	if opts.TimerMin <= 0 {
		opts.TimerMin = DefaultTimerMin
	}
	if opts.TimerMax <= 0 {
		opts.TimerMax = DefaultTimerMax
	}
	if opts.Rewards == nil {
		opts.Rewards = rewards.Nop()
	}

	g := &Game{opts: opts}
	g.handlers = map[string]party.Handler{
		"player:ready":              g.handleReady,
		"game:start":                g.handleStart,
		"game:submit-word":          g.handleSubmitWord,
		"game:next-round":           g.handleNextRound,
		"game:restart":              g.handleRestart,
		"settings:update":           g.handleSettingsUpdate,
		"game:voice-vote":           g.handleVoiceVote,
		"game:voice-dispute-revote": g.handleDisputeRevote,
		"game:typing-update":        g.handleTypingUpdate,
	}

	return g
}

func (g *Game) ID() string {
	return ID
}

func (g *Game) DefaultSettings() rooms.Settings {
	return rooms.Settings{
		MinPlayers:    2,
		MaxPlayers:    10,
		TimerDuration: min(max(DefaultTimerDuration, g.opts.TimerMin), g.opts.TimerMax),
		MaxLives:      5,
	}
}

func (g *Game) ValidateSettings(s rooms.Settings) error {
	if err := rooms.ValidateSettings(s); err != nil {
		return err
	}

	if s.MinPlayers < 2 {
		return apperr.Validation("minPlayers must be at least 2")
	}

	if s.TimerDuration < g.opts.TimerMin || s.TimerDuration > g.opts.TimerMax {
		return apperr.Validation("timerDuration must be between %d and %d seconds", g.opts.TimerMin, g.opts.TimerMax)
	}

	if s.MaxLives < MinLives || s.MaxLives > MaxLives {
		return apperr.Validation("maxLives must be between %d and %d", MinLives, MaxLives)
	}

	return nil
}

func (g *Game) Handlers() map[string]party.Handler {
	return g.handlers
}

func (g *Game) OnRoomCreate(rc *party.RoomContext) {
	rc.Room().State.Data = newState()
}

func (g *Game) OnPlayerJoin(rc *party.RoomContext, p *rooms.Player, reconnecting bool) {
	playerData(p)

	st, ok := state(rc)
	if !ok || !reconnecting || !st.Bound(p.ID) {
		return
	}

	g.resume(rc, st)
}

// OnPlayerDisconnected pauses the round while a duelist is away. The game
// only ends once the player is actually removed from the room.
func (g *Game) OnPlayerDisconnected(rc *party.RoomContext, p *rooms.Player) {
	st, ok := state(rc)
	if !ok || !st.Bound(p.ID) {
		return
	}

	switch rc.Room().State.Phase {
	case PhaseRoundPrep, PhaseWordInput:
		g.pause(rc, st)
	}
}

func (g *Game) OnPlayerLeave(rc *party.RoomContext, p *rooms.Player) {
	st, ok := state(rc)
	if !ok {
		return
	}
	delete(st.typing, p.ID)

	// An emptied room may linger for a rejoin, which only lobbies accept.
	if len(rc.Members()) == 0 {
		g.reset(rc)
		return
	}

	if !st.Bound(p.ID) {
		return
	}

	switch rc.Room().State.Phase {
	case PhaseRoundPrep, PhaseWordInput, PhaseReveal:
		g.end(rc, st, EndPlayerLeft)
	}
}

func (g *Game) OnRoomDestroy(rc *party.RoomContext) {
	rc.Logger().Debug().Msg("GAMES: Word duel torn down")
}

func state(rc *party.RoomContext) (*State, bool) {
	return rooms.Data[*State](rc.Room())
}
