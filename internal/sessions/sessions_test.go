package sessions

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/clock"
)

func setup() (*Manager, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(clk, DefaultTTL, zerolog.Nop()), clk
}

func TestCreateAndValidate(t *testing.T) {
	m, _ := setup()

	token := m.CreateSession("p1", "ABCDEF", "")
	require.Len(t, token, 64)

	s, err := m.ValidateSession(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", s.PlayerID)
	assert.Equal(t, "ABCDEF", s.RoomCode)
	assert.False(t, s.External)
}

func TestValidateUnknownToken(t *testing.T) {
	m, _ := setup()

	_, err := m.ValidateSession("nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestValidateExpiresAfterIdleWindow(t *testing.T) {
	m, clk := setup()

	token := m.CreateSession("p1", "ABCDEF", "")

	clk.Advance(DefaultTTL + time.Second)

	_, err := m.ValidateSession(token)
	assert.True(t, errors.Is(err, apperr.ErrSessionExpired))
	assert.Equal(t, 0, m.Count())

	_, err = m.ValidateSession(token)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestValidateRefreshesActivity(t *testing.T) {
	m, clk := setup()

	token := m.CreateSession("p1", "ABCDEF", "")

	for i := 0; i < 4; i++ {
		clk.Advance(20 * time.Minute)
		_, err := m.ValidateSession(token)
		require.NoError(t, err)
	}
}

func TestOneTokenPerPlayer(t *testing.T) {
	m, _ := setup()

	first := m.CreateSession("p1", "ABCDEF", "")
	second := m.CreateSession("p1", "ABCDEF", "")

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, m.Count())

	_, err := m.ValidateSession(first)
	assert.Error(t, err)
}

func TestSessionForAndDelete(t *testing.T) {
	m, _ := setup()

	token := m.CreateSession("p1", "ABCDEF", "")

	s, ok := m.SessionFor("p1")
	require.True(t, ok)
	assert.Equal(t, token, s.Token)
	assert.Equal(t, "ABCDEF", s.RoomCode)

	m.DeleteSession(token)

	_, ok = m.SessionFor("p1")
	assert.False(t, ok)
	_, err := m.ValidateSession(token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, m.Count())
}

func TestExternalTokenIsRegistered(t *testing.T) {
	m, _ := setup()

	token := m.CreateSession("p1", "ABCDEF", "platform-token")
	assert.Equal(t, "platform-token", token)

	again := m.CreateSession("p1", "GHIJKL", "platform-token")
	assert.Equal(t, token, again)

	s, err := m.ValidateSession(token)
	require.NoError(t, err)
	assert.True(t, s.External)
	assert.Equal(t, "GHIJKL", s.RoomCode)
	assert.Equal(t, 1, m.Count())
}

func TestDeleteSessionsForRoom(t *testing.T) {
	m, _ := setup()

	m.CreateSession("p1", "AAAAAA", "")
	m.CreateSession("p2", "AAAAAA", "")
	keep := m.CreateSession("p3", "BBBBBB", "")

	assert.Equal(t, 2, m.DeleteSessionsForRoom("AAAAAA"))
	assert.Equal(t, 1, m.Count())

	_, err := m.ValidateSession(keep)
	assert.NoError(t, err)
}

func TestSweep(t *testing.T) {
	m, clk := setup()

	m.CreateSession("p1", "AAAAAA", "")
	clk.Advance(20 * time.Minute)
	fresh := m.CreateSession("p2", "AAAAAA", "")
	clk.Advance(15 * time.Minute)

	assert.Equal(t, 1, m.Sweep())

	_, err := m.ValidateSession(fresh)
	assert.NoError(t, err)
}
