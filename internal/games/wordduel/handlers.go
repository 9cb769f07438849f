package wordduel

import (
	"encoding/json"
	"slices"
	"unicode/utf8"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/party"
	"github.com/Seednode/partyhost/internal/rooms"
)

type Started struct {
	Player1ID     string `json:"player1Id"`
	Player2ID     string `json:"player2Id"`
	MaxLives      int    `json:"maxLives"`
	TimerDuration int    `json:"timerDuration"`
	VoiceMode     bool   `json:"voiceMode"`
}

type TypingUpdate struct {
	PlayerIndex int    `json:"playerIndex"`
	Word        string `json:"word"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type wordPayload struct {
	Word string `json:"word"`
}

type votePayload struct {
	Vote string `json:"vote"`
}

type settingsPayload struct {
	Settings *rooms.Settings `json:"settings"`
}

func (g *Game) handleReady(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	var in readyPayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	if err := requirePhase(rc, rooms.PhaseLobby); err != nil {
		return err
	}

	p, ok := rc.PlayerByConn(connID)
	if !ok {
		return apperr.NotFound("player")
	}
	if p.Spectator {
		return apperr.Validation("spectators cannot ready up")
	}

	playerData(p).Ready = in.Ready

	return nil
}

func (g *Game) handleStart(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	if err := requireHost(rc, connID); err != nil {
		return err
	}
	if err := requirePhase(rc, rooms.PhaseLobby); err != nil {
		return err
	}

	settings := rc.Room().Settings

	var ready []*rooms.Player
	for _, p := range rc.Members() {
		if p.Connected && !p.Spectator && playerData(p).Ready {
			ready = append(ready, p)
		}
	}

	need := max(settings.MinPlayers, 2)
	if len(ready) < need {
		return apperr.Validation("need %d ready players, have %d", need, len(ready))
	}

	st := newState()
	st.Player1ID = ready[0].ID
	st.Player2ID = ready[1].ID
	st.Round = 1
	st.MaxLives = settings.MaxLives
	st.LivesRemaining = settings.MaxLives
	st.TimerDuration = settings.TimerDuration
	st.VoiceMode = settings.VoiceMode
	rc.Room().State.Data = st

	rc.EmitToRoom("game:started", Started{
		Player1ID:     st.Player1ID,
		Player2ID:     st.Player2ID,
		MaxLives:      st.MaxLives,
		TimerDuration: st.TimerDuration,
		VoiceMode:     st.VoiceMode,
	})

	g.startRoundPrep(rc, st)

	rc.Logger().Info().Str("player1", st.Player1ID).Str("player2", st.Player2ID).Msg("GAMES: Word duel started")

	return nil
}

func (g *Game) handleSubmitWord(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	var in wordPayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	st, p, err := g.duelist(rc, connID, PhaseWordInput)
	if err != nil {
		return err
	}
	if st.VoiceMode {
		return apperr.Validation("this room votes instead of typing")
	}
	if st.Submitted[p.ID] {
		return apperr.Validation("word already submitted")
	}

	word := Normalize(in.Word)
	if word == "" {
		return apperr.Validation("word is empty")
	}
	if utf8.RuneCountInString(word) > MaxWordLength {
		return apperr.Validation("word is longer than %d characters", MaxWordLength)
	}

	st.Words[p.ID] = word
	st.Submitted[p.ID] = true
	delete(st.LiveWords, p.ID)

	if st.bothSubmitted() {
		g.reveal(rc, st, false)
	}

	return nil
}

func (g *Game) handleNextRound(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	if err := requirePhase(rc, PhaseReveal); err != nil {
		return err
	}

	st, ok := state(rc)
	if !ok {
		return apperr.PhaseMismatch("no game in progress")
	}

	p, ok := rc.PlayerByConn(connID)
	if !ok {
		return apperr.NotFound("player")
	}
	if !st.Bound(p.ID) && !p.IsHost {
		return apperr.Authorization("only a duelist or the host can advance the round")
	}

	st.Round++
	g.startRoundPrep(rc, st)

	return nil
}

func (g *Game) handleRestart(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	if err := requireHost(rc, connID); err != nil {
		return err
	}
	if rc.Room().State.Phase == rooms.PhaseLobby {
		return apperr.PhaseMismatch("game has not started")
	}

	g.reset(rc)

	return nil
}

func (g *Game) handleSettingsUpdate(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	var in settingsPayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	if err := requireHost(rc, connID); err != nil {
		return err
	}
	if err := requirePhase(rc, rooms.PhaseLobby); err != nil {
		return err
	}
	if in.Settings == nil {
		return apperr.Validation("settings are required")
	}

	settings := party.MergeSettings(rc.Room().Settings, in.Settings)
	if err := rc.UpdateSettings(settings); err != nil {
		return err
	}

	rc.EmitToRoom("settings:updated", settings)

	return nil
}

func (g *Game) handleVoiceVote(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	var in votePayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	st, p, err := g.duelist(rc, connID, PhaseWordInput)
	if err != nil {
		return err
	}
	if !st.VoiceMode {
		return apperr.Validation("this room types words instead of voting")
	}
	if st.Disputed {
		return apperr.PhaseMismatch("votes disagree, send a revote")
	}
	if err := validVote(in.Vote); err != nil {
		return err
	}
	if _, voted := st.Votes[p.ID]; voted {
		return apperr.Validation("vote already cast")
	}

	st.Votes[p.ID] = in.Vote
	st.Submitted[p.ID] = true

	v1, ok1 := st.Votes[st.Player1ID]
	v2, ok2 := st.Votes[st.Player2ID]
	if !ok1 || !ok2 {
		return nil
	}

	if v1 == v2 {
		g.reveal(rc, st, false)
		return nil
	}

	rc.Timers().Clear(timerRound)
	st.TimerActive = false
	st.Disputed = true

	rc.Timers().After(timerRevote, RevoteWindow, g.revoteTimeout)
	rc.EmitToRoom("game:voice-dispute", Dispute{
		Vote1:    v1,
		Vote2:    v2,
		Deadline: rc.Now().Add(RevoteWindow),
	})

	return nil
}

func (g *Game) handleDisputeRevote(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	var in votePayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	st, p, err := g.duelist(rc, connID, PhaseWordInput)
	if err != nil {
		return err
	}
	if !st.Disputed {
		return apperr.PhaseMismatch("no vote dispute is open")
	}
	if err := validVote(in.Vote); err != nil {
		return err
	}
	if _, voted := st.DisputeVotes[p.ID]; voted {
		return apperr.Validation("revote already cast")
	}

	st.DisputeVotes[p.ID] = in.Vote

	_, ok1 := st.DisputeVotes[st.Player1ID]
	_, ok2 := st.DisputeVotes[st.Player2ID]
	if ok1 && ok2 {
		g.reveal(rc, st, false)
	}

	return nil
}

// handleTypingUpdate relays a duelist's in-progress word to everyone who is
// not dueling. It never triggers a full state push.
func (g *Game) handleTypingUpdate(rc *party.RoomContext, connID string, payload json.RawMessage) error {
	rc.SkipSync()

	var in wordPayload
	if err := party.Decode(payload, &in); err != nil {
		return err
	}

	st, p, err := g.duelist(rc, connID, PhaseWordInput)
	if err != nil {
		return err
	}
	if st.VoiceMode || st.Submitted[p.ID] {
		return nil
	}

	if !st.allowTyping(p.ID, rc.Now()) {
		return nil
	}

	word := truncate(Normalize(in.Word), MaxWordLength)
	st.LiveWords[p.ID] = word

	update := TypingUpdate{PlayerIndex: st.Slot(p.ID), Word: word}
	for _, m := range rc.Members() {
		if !st.Bound(m.ID) {
			rc.EmitToPlayer(m.ID, "spectator:typing-update", update)
		}
	}

	return nil
}

// duelist resolves connID to one of the two bound players and checks the
// phase.
func (g *Game) duelist(rc *party.RoomContext, connID string, phase string) (*State, *rooms.Player, error) {
	if err := requirePhase(rc, phase); err != nil {
		return nil, nil, err
	}

	st, ok := state(rc)
	if !ok {
		return nil, nil, apperr.PhaseMismatch("no game in progress")
	}

	p, ok := rc.PlayerByConn(connID)
	if !ok {
		return nil, nil, apperr.NotFound("player")
	}
	if !st.Bound(p.ID) {
		return nil, nil, apperr.Authorization("only the two duelists can do that")
	}

	return st, p, nil
}

func requireHost(rc *party.RoomContext, connID string) error {
	if !rc.IsHost(connID) {
		return apperr.Authorization("only the host can do that")
	}

	return nil
}

func requirePhase(rc *party.RoomContext, phases ...string) error {
	phase := rc.Room().State.Phase
	if slices.Contains(phases, phase) {
		return nil
	}

	return apperr.PhaseMismatch("not allowed during %s", phase)
}

func validVote(vote string) error {
	if vote != VoteMatch && vote != VoteNoMatch {
		return apperr.Validation("vote must be %q or %q", VoteMatch, VoteNoMatch)
	}

	return nil
}
