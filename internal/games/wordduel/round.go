package wordduel

import (
	"context"
	"time"

	"github.com/Seednode/partyhost/internal/party"
	"github.com/Seednode/partyhost/internal/rewards"
	"github.com/Seednode/partyhost/internal/rooms"
)

type TimerUpdate struct {
	Phase         string `json:"phase"`
	TimeRemaining int    `json:"timeRemaining"`
}

type RoundOutcome struct {
	Result         RoundResult `json:"result"`
	LivesRemaining int         `json:"livesRemaining"`
}

type Ended struct {
	Reason         string        `json:"reason"`
	Round          int           `json:"round"`
	LivesRemaining int           `json:"livesRemaining"`
	History        []RoundResult `json:"history"`
}

type Dispute struct {
	Vote1 string `json:"vote1"`
	Vote2 string `json:"vote2"`
	// Deadline is when an unresolved dispute falls back to no-match.
	Deadline time.Time `json:"deadline"`
}

type RewardNotice struct {
	Outcome rewards.Outcome `json:"outcome"`
	Reward  *rewards.Reward `json:"reward"`
}

func (g *Game) startRoundPrep(rc *party.RoomContext, st *State) {
	st.clearRound()
	st.TimeRemaining = st.TimerDuration
	st.CountdownRemaining = CountdownSeconds
	rc.Room().State.Phase = PhaseRoundPrep

	rc.Timers().Every(timerCountdown, TickInterval, g.countdownTick)
}

func (g *Game) countdownTick(rc *party.RoomContext) {
	st, ok := state(rc)
	if !ok || rc.Room().State.Phase != PhaseRoundPrep {
		rc.Timers().Clear(timerCountdown)
		return
	}

	st.CountdownRemaining--
	if st.CountdownRemaining > 0 {
		rc.EmitToRoom("timer:update", TimerUpdate{Phase: PhaseRoundPrep, TimeRemaining: st.CountdownRemaining})
		return
	}

	rc.Timers().Clear(timerCountdown)
	g.beginWordInput(rc, st)
	rc.BroadcastState()
}

func (g *Game) beginWordInput(rc *party.RoomContext, st *State) {
	st.CountdownRemaining = 0
	rc.Room().State.Phase = PhaseWordInput
	g.startRoundTimer(rc, st)
}

func (g *Game) startRoundTimer(rc *party.RoomContext, st *State) {
	st.TimerActive = true
	st.Paused = false
	rc.Timers().Every(timerRound, TickInterval, g.roundTick)
}

func (g *Game) roundTick(rc *party.RoomContext) {
	st, ok := state(rc)
	if !ok || !st.TimerActive || rc.Room().State.Phase != PhaseWordInput {
		rc.Timers().Clear(timerRound)
		return
	}

	st.TimeRemaining--
	rc.EmitToRoom("timer:update", TimerUpdate{Phase: PhaseWordInput, TimeRemaining: st.TimeRemaining})

	if st.TimeRemaining > 0 {
		return
	}

	rc.Timers().Clear(timerRound)
	g.timeout(rc, st)
	rc.BroadcastState()
}

// timeout fills in whatever the duelists failed to submit and reveals.
func (g *Game) timeout(rc *party.RoomContext, st *State) {
	if !rc.Guards().TryEnter(guardTimeout) {
		return
	}
	defer rc.Guards().Exit(guardTimeout)

	if rc.Room().State.Phase != PhaseWordInput {
		return
	}

	st.TimerActive = false
	st.TimeRemaining = 0

	for _, id := range []string{st.Player1ID, st.Player2ID} {
		if !st.Submitted[id] {
			st.Words[id] = ""
			st.Submitted[id] = true
		}
	}

	g.reveal(rc, st, true)
}

func (g *Game) revoteTimeout(rc *party.RoomContext) {
	if !rc.Guards().TryEnter(guardRevoteTimeout) {
		return
	}
	defer rc.Guards().Exit(guardRevoteTimeout)

	st, ok := state(rc)
	if !ok || !st.Disputed || rc.Room().State.Phase != PhaseWordInput {
		return
	}

	g.reveal(rc, st, true)
	rc.BroadcastState()
}

// reveal resolves the current round. Every path that ends a round goes
// through here, and it acts at most once per round.
func (g *Game) reveal(rc *party.RoomContext, st *State, timedOut bool) {
	if !rc.Guards().TryEnter(guardReveal) {
		return
	}
	defer rc.Guards().Exit(guardReveal)

	if rc.Room().State.Phase != PhaseWordInput {
		return
	}

	rc.Timers().Clear(timerRound)
	rc.Timers().Clear(timerRevote)
	st.TimerActive = false

	result := st.judge(timedOut)
	st.History = append(st.History, result)

	if result.Match {
		rc.Room().State.Phase = PhaseVictory
		st.EndReason = EndVictory
		rc.Timers().ClearAll()

		rc.EmitToRoom("game:victory", RoundOutcome{Result: result, LivesRemaining: st.LivesRemaining})
		g.grant(rc, st, rewards.OutcomeWin)

		return
	}

	st.LivesRemaining--
	rc.EmitToRoom("game:no-match", RoundOutcome{Result: result, LivesRemaining: max(st.LivesRemaining, 0)})

	if st.LivesRemaining <= 0 {
		st.LivesRemaining = 0
		g.end(rc, st, EndLivesExhausted)
		g.grant(rc, st, rewards.OutcomeLoss)

		return
	}

	rc.Room().State.Phase = PhaseReveal
}

func (st *State) judge(timedOut bool) RoundResult {
	result := RoundResult{
		Round:    st.Round,
		Word1:    st.Words[st.Player1ID],
		Word2:    st.Words[st.Player2ID],
		TimedOut: timedOut,
	}

	if !st.VoiceMode {
		result.Match = result.Word1 != "" && result.Word1 == result.Word2
		return result
	}

	votes := st.Votes
	if st.Disputed {
		votes = st.DisputeVotes
	}
	result.Vote1 = votes[st.Player1ID]
	result.Vote2 = votes[st.Player2ID]
	result.Match = result.Vote1 == VoteMatch && result.Vote2 == VoteMatch

	return result
}

// end moves the game to game_over and stops every timer the room has.
func (g *Game) end(rc *party.RoomContext, st *State, reason string) {
	rc.Timers().ClearAll()

	st.TimerActive = false
	st.Paused = false
	st.EndReason = reason
	rc.Room().State.Phase = PhaseGameOver

	rc.EmitToRoom("game:ended", Ended{
		Reason:         reason,
		Round:          st.Round,
		LivesRemaining: st.LivesRemaining,
		History:        st.History,
	})

	rc.Logger().Info().Str("reason", reason).Int("round", st.Round).Msg("GAMES: Word duel ended")
}

// grant issues rewards to both duelists once per game. The call runs off
// the event loop and its failure never touches game state.
func (g *Game) grant(rc *party.RoomContext, st *State, outcome rewards.Outcome) {
	if st.RewardsIssued {
		return
	}
	st.RewardsIssued = true

	if !rc.Room().Linked {
		return
	}

	granter := g.opts.Rewards
	log := rc.Logger()
	ids := []string{st.Player1ID, st.Player2ID}

	rc.Async(func(ctx context.Context) func(*party.RoomContext) {
		granted := make(map[string]*rewards.Reward, len(ids))
		for _, id := range ids {
			reward, err := granter.Grant(ctx, ID, id, outcome)
			if err != nil {
				log.Error().Err(err).Str("player", id).Msg("GAMES: Failed to grant reward")
				continue
			}
			if reward != nil {
				granted[id] = reward
			}
		}

		return func(rc *party.RoomContext) {
			for id, reward := range granted {
				rc.EmitToPlayer(id, "player:reward", RewardNotice{Outcome: outcome, Reward: reward})
			}
		}
	})
}

func (g *Game) pause(rc *party.RoomContext, st *State) {
	rc.Timers().Clear(timerCountdown)
	rc.Timers().Clear(timerRound)

	st.TimerActive = false
	st.Paused = true

	rc.Logger().Debug().Int("timeRemaining", st.TimeRemaining).Msg("GAMES: Paused round")
}

// resume restarts a paused clock once both duelists are back.
func (g *Game) resume(rc *party.RoomContext, st *State) {
	if !g.duelistsConnected(rc, st) {
		return
	}

	switch rc.Room().State.Phase {
	case PhaseRoundPrep:
		if st.CountdownRemaining > 0 && !rc.Timers().Active(timerCountdown) {
			st.Paused = false
			rc.Timers().Every(timerCountdown, TickInterval, g.countdownTick)
		}
	case PhaseWordInput:
		if st.TimeRemaining > 0 && !st.Disputed && !rc.Timers().Active(timerRound) {
			g.startRoundTimer(rc, st)
			rc.Logger().Debug().Int("timeRemaining", st.TimeRemaining).Msg("GAMES: Resumed round")
		}
	}
}

func (g *Game) duelistsConnected(rc *party.RoomContext, st *State) bool {
	for _, id := range []string{st.Player1ID, st.Player2ID} {
		p, ok := rc.Player(id)
		if !ok || !p.Connected {
			return false
		}
	}

	return true
}

func (g *Game) reset(rc *party.RoomContext) {
	rc.Timers().ClearAll()

	rc.Room().State.Phase = rooms.PhaseLobby
	rc.Room().State.Data = newState()

	for _, p := range rc.Members() {
		playerData(p).Ready = false
	}
}
