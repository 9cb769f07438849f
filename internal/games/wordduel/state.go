// Package wordduel is a two-player game where both players try to say the
// same word at the same time. They share a pool of lives; each miss costs
// one, and a match wins the game.
package wordduel

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/Seednode/partyhost/internal/rooms"
)

const ID = "wordduel"

const (
	PhaseRoundPrep = "round_prep"
	PhaseWordInput = "word_input"
	PhaseReveal    = "reveal"
	PhaseVictory   = "victory"
	PhaseGameOver  = "game_over"
)

const (
	EndVictory        = "victory"
	EndLivesExhausted = "lives-exhausted"
	EndPlayerLeft     = "player-left"

	VoteMatch   = "match"
	VoteNoMatch = "no-match"
)

const (
	CountdownSeconds = 3
	TickInterval     = time.Second
	RevoteWindow     = 10 * time.Second
	TypingInterval   = 100 * time.Millisecond
	MaxWordLength    = 32

	DefaultTimerDuration = 60
	DefaultTimerMin      = 10
	DefaultTimerMax      = 300
	MinLives             = 1
	MaxLives             = 10

	timerCountdown = "countdown"
	timerRound     = "round"
	timerRevote    = "revote"

	guardReveal        = "reveal"
	guardTimeout       = "timeout"
	guardRevoteTimeout = "revote-timeout"
)

type RoundResult struct {
	Round    int    `json:"round"`
	Word1    string `json:"word1"`
	Word2    string `json:"word2"`
	Vote1    string `json:"vote1,omitempty"`
	Vote2    string `json:"vote2,omitempty"`
	Match    bool   `json:"match"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// State is the room's game data. Everything per player is keyed by stable
// player id, and only the two bound ids ever take part in a round.
type State struct {
	Round              int
	LivesRemaining     int
	MaxLives           int
	TimerDuration      int
	TimeRemaining      int
	CountdownRemaining int
	VoiceMode          bool

	Player1ID string
	Player2ID string

	Words        map[string]string
	Submitted    map[string]bool
	LiveWords    map[string]string
	Votes        map[string]string
	DisputeVotes map[string]string
	Disputed     bool

	History       []RoundResult
	EndReason     string
	RewardsIssued bool

	// TimerActive is false whenever the round clock must not advance, so a
	// tick that slipped past a phase change does nothing.
	TimerActive bool
	Paused      bool

	typing map[string]*rate.Limiter
}

func (*State) GameID() string {
	return ID
}

func newState() *State {
	st := &State{typing: make(map[string]*rate.Limiter)}
	st.clearRound()

	return st
}

func (st *State) clearRound() {
	st.Words = make(map[string]string)
	st.Submitted = make(map[string]bool)
	st.LiveWords = make(map[string]string)
	st.Votes = make(map[string]string)
	st.DisputeVotes = make(map[string]string)
	st.Disputed = false
	st.TimerActive = false
	st.Paused = false
}

// Slot returns 1 or 2 for a bound player and 0 for anyone else.
func (st *State) Slot(playerID string) int {
	switch {
	case playerID == "":
		return 0
	case playerID == st.Player1ID:
		return 1
	case playerID == st.Player2ID:
		return 2
	}

	return 0
}

func (st *State) Bound(playerID string) bool {
	return st.Slot(playerID) != 0
}

func (st *State) bothSubmitted() bool {
	return st.Submitted[st.Player1ID] && st.Submitted[st.Player2ID]
}

func (st *State) allowTyping(playerID string, now time.Time) bool {
	l, ok := st.typing[playerID]
	if !ok {
		l = rate.NewLimiter(rate.Every(TypingInterval), 1)
		st.typing[playerID] = l
	}

	return l.AllowN(now, 1)
}

// PlayerData is kept on each rooms.Player and survives reconnection.
type PlayerData struct {
	Ready bool `json:"ready"`
}

func playerData(p *rooms.Player) *PlayerData {
	if pd, ok := p.GameData.(*PlayerData); ok {
		return pd
	}

	pd := &PlayerData{}
	p.GameData = pd

	return pd
}

// Normalize uppercases a word, drops everything but letters, digits and
// spaces, and collapses runs of whitespace.
func Normalize(word string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(word) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
