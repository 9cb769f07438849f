package party

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/partyhost/internal/apperr"
	"github.com/Seednode/partyhost/internal/clock"
	"github.com/Seednode/partyhost/internal/party/partytest"
	"github.com/Seednode/partyhost/internal/rooms"
)

type stubData struct {
	Count int
}

func (*stubData) GameID() string { return "stub" }

type stubView struct {
	Code   string
	Viewer string
	Count  int
}

type stubPlugin struct {
	created      int
	joins        []string
	reconnects   []string
	disconnects  []string
	leaves       []string
	destroyed    int
	extra        map[string]Handler
	validateErr  error
	serializeLog []string
}

func (s *stubPlugin) ID() string { return "stub" }

func (s *stubPlugin) DefaultSettings() rooms.Settings {
	return rooms.Settings{MinPlayers: 1, MaxPlayers: 3}
}

func (s *stubPlugin) ValidateSettings(rooms.Settings) error { return s.validateErr }

func (s *stubPlugin) OnRoomCreate(rc *RoomContext) {
	s.created++
	rc.Room().State.Data = &stubData{}
}

func (s *stubPlugin) OnPlayerJoin(rc *RoomContext, p *rooms.Player, reconnecting bool) {
	if reconnecting {
		s.reconnects = append(s.reconnects, p.ID)
		return
	}
	s.joins = append(s.joins, p.ID)
}

func (s *stubPlugin) OnPlayerDisconnected(rc *RoomContext, p *rooms.Player) {
	s.disconnects = append(s.disconnects, p.ID)
}

func (s *stubPlugin) OnPlayerLeave(rc *RoomContext, p *rooms.Player) {
	s.leaves = append(s.leaves, p.ID)
}

func (s *stubPlugin) OnRoomDestroy(rc *RoomContext) { s.destroyed++ }

func (s *stubPlugin) Handlers() map[string]Handler {
	h := map[string]Handler{
		"stub:inc": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			var in struct {
				By int `json:"by"`
			}
			if err := Decode(payload, &in); err != nil {
				return err
			}
			if in.By <= 0 {
				return apperr.Validation("by must be positive")
			}
			data, _ := rooms.Data[*stubData](rc.Room())
			data.Count += in.By
			return nil
		},
		"stub:panic": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			panic("boom")
		},
		"stub:quiet": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.SkipSync()
			return nil
		},
	}
	for k, v := range s.extra {
		h[k] = v
	}

	return h
}

func (s *stubPlugin) SerializeRoom(room *rooms.Room, viewer string) any {
	s.serializeLog = append(s.serializeLog, viewer)
	data, _ := rooms.Data[*stubData](room)
	return stubView{Code: room.Code, Viewer: viewer, Count: data.Count}
}

type harness struct {
	d      *Dispatcher
	clk    *clock.Fake
	out    *partytest.Recorder
	plugin *stubPlugin
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clk:    clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)),
		out:    &partytest.Recorder{},
		plugin: &stubPlugin{},
	}
	h.d = New(Config{}, h.clk, h.out, zerolog.Nop(), h.plugin)
	t.Cleanup(h.d.Close)

	return h
}

func (h *harness) create(t *testing.T, conn, player string) Joined {
	t.Helper()

	joined, err := h.d.CreateRoom(conn, CreateRequest{GameID: "stub", Name: "Host", PlayerID: player})
	require.NoError(t, err)

	return joined
}

func (h *harness) join(t *testing.T, conn, player, code string) Joined {
	t.Helper()

	joined, err := h.d.JoinRoom(conn, JoinRequest{Code: code, Name: player, PlayerID: player})
	require.NoError(t, err)

	return joined
}

func lastError(t *testing.T, out *partytest.Recorder, conn string) ErrorPayload {
	t.Helper()

	payload, ok := out.Last(conn, EventError)
	require.True(t, ok, "no error sent to %s", conn)

	return payload.(ErrorPayload)
}

func TestCreateRoomSendsJoinedAndState(t *testing.T) {
	h := newHarness(t)

	joined := h.create(t, "c1", "p1")
	assert.Len(t, joined.Code, rooms.CodeLength)
	assert.Equal(t, "p1", joined.PlayerID)
	assert.NotEmpty(t, joined.SessionToken)
	assert.False(t, joined.Reconnected)

	assert.Equal(t, []string{EventRoomJoined, EventRoomState}, h.out.Events("c1"))
	assert.Equal(t, 1, h.plugin.created)
	assert.Equal(t, []string{"p1"}, h.plugin.joins)
}

func TestCreateRoomUnknownGame(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.CreateRoom("c1", CreateRequest{GameID: "chess"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "not_found", lastError(t, h.out, "c1").Code)
}

func TestCreateRoomRejectsInvalidSettings(t *testing.T) {
	h := newHarness(t)
	h.plugin.validateErr = apperr.Validation("nope")

	_, err := h.d.CreateRoom("c1", CreateRequest{GameID: "stub"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, h.d.Stats().Rooms)
}

func TestCreateRoomTwiceOnOneConnection(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")

	_, err := h.d.CreateRoom("c1", CreateRequest{GameID: "stub"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJoinBroadcastsPerViewerState(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.out.Reset()

	joined := h.join(t, "c2", "p2", code)
	assert.Equal(t, code, joined.Code)

	for _, conn := range []string{"c1", "c2"} {
		payload, ok := h.out.Last(conn, EventRoomState)
		require.True(t, ok)
		assert.Equal(t, conn, payload.(stubView).Viewer)
	}

	chat, ok := h.out.Last("c1", EventChat)
	require.True(t, ok)
	assert.True(t, chat.(rooms.Message).System)
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code

	joined, err := h.d.JoinRoom("c2", JoinRequest{Code: " " + strings.ToLower(code) + " ", PlayerID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, code, joined.Code)
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness(t)

	_, err := h.d.JoinRoom("c1", JoinRequest{Code: "ZZZZZZ"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "not_found", lastError(t, h.out, "c1").Code)
}

func TestJoinFullRoom(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)
	h.join(t, "c3", "p3", code)

	_, err := h.d.JoinRoom("c4", JoinRequest{Code: code, PlayerID: "p4"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestJoinWithSessionTokenReconnects(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	first := h.join(t, "c2", "p2", code)

	h.d.Disconnect("c2")
	assert.Equal(t, []string{"p2"}, h.plugin.disconnects)

	joined, err := h.d.JoinRoom("c9", JoinRequest{Code: code, SessionToken: first.SessionToken})
	require.NoError(t, err)
	assert.True(t, joined.Reconnected)
	assert.Equal(t, "p2", joined.PlayerID)
	assert.NotEqual(t, first.SessionToken, joined.SessionToken)
	assert.Equal(t, []string{"p2"}, h.plugin.reconnects)

	h.d.WithRoom(code, func(room *rooms.Room) {
		assert.Equal(t, "c9", room.Players["p2"].SocketID)
		assert.True(t, room.Players["p2"].Connected)
	})
}

func TestJoinWithBadSessionTokenJoinsFresh(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code

	joined, err := h.d.JoinRoom("c2", JoinRequest{Code: code, SessionToken: "bogus"})
	require.NoError(t, err)
	assert.False(t, joined.Reconnected)
	assert.NotEmpty(t, joined.PlayerID)
	assert.NotEqual(t, "p1", joined.PlayerID)
}

func TestJoinWithSessionForAnotherRoomJoinsFresh(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "c1", "p1")
	b := h.create(t, "c2", "p2")

	joined, err := h.d.JoinRoom("c3", JoinRequest{Code: b.Code, SessionToken: a.SessionToken})
	require.NoError(t, err)
	assert.False(t, joined.Reconnected)
	assert.NotEqual(t, "p1", joined.PlayerID)
}

func TestJoinByInvite(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code

	token, err := h.d.CreateInvite(code)
	require.NoError(t, err)

	resolved, ok := h.d.ResolveInvite(token)
	require.True(t, ok)
	assert.Equal(t, code, resolved)

	joined, err := h.d.JoinRoom("c2", JoinRequest{Invite: token, PlayerID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, code, joined.Code)

	_, err = h.d.JoinRoom("c3", JoinRequest{Invite: "nope"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDispatchRoutesToPlugin(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)
	h.out.Reset()

	require.NoError(t, h.d.Dispatch("c1", "stub:inc", json.RawMessage(`{"by":2}`)))

	for _, conn := range []string{"c1", "c2"} {
		payload, ok := h.out.Last(conn, EventRoomState)
		require.True(t, ok)
		assert.Equal(t, 2, payload.(stubView).Count)
	}
}

func TestDispatchErrorsGoToSenderOnly(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)
	h.out.Reset()

	err := h.d.Dispatch("c2", "stub:inc", json.RawMessage(`{"by":0}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "validation", lastError(t, h.out, "c2").Code)

	assert.Empty(t, h.out.Events("c1"))
	assert.Empty(t, h.out.To("c2", EventRoomState))
}

func TestDispatchMalformedPayload(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")

	err := h.d.Dispatch("c1", "stub:inc", json.RawMessage(`{"by":`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDispatchWithoutRoom(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")
	h.out.Reset()

	err := h.d.Dispatch("stranger", "stub:inc", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []string{EventError}, h.out.Events("stranger"))
	assert.Empty(t, h.out.Events("c1"))
}

func TestDispatchUnknownEvent(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")

	err := h.d.Dispatch("c1", "stub:fly", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDispatchRecoversPanics(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code

	err := h.d.Dispatch("c1", "stub:panic", nil)
	require.Error(t, err)
	assert.Equal(t, "internal", lastError(t, h.out, "c1").Code)

	_, err = h.d.RoomSummary(code)
	assert.NoError(t, err)
}

func TestDispatchSkipSync(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")
	h.out.Reset()

	require.NoError(t, h.d.Dispatch("c1", "stub:quiet", nil))
	assert.Empty(t, h.out.To("c1", EventRoomState))
}

func TestDispatchTouchesRoom(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code

	h.clk.Advance(time.Hour)
	require.NoError(t, h.d.Dispatch("c1", "stub:quiet", nil))

	h.d.WithRoom(code, func(room *rooms.Room) {
		assert.Equal(t, h.clk.Now(), room.LastActivity)
	})
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)
	h.out.Reset()

	require.NoError(t, h.d.Dispatch("c1", EventChat, json.RawMessage(`{"text":"  hello  "}`)))

	payload, ok := h.out.Last("c2", EventChat)
	require.True(t, ok)
	msg := payload.(rooms.Message)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "p1", msg.PlayerID)
	assert.Empty(t, h.out.To("c2", EventRoomState))

	err := h.d.Dispatch("c1", EventChat, json.RawMessage(`{"text":"   "}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPublishTargets(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)
	h.d.Disconnect("c2")
	h.out.Reset()

	h.d.Publish(RoomTarget(code), "notice", "all")
	h.d.Publish(ConnTarget("c2"), "notice", "one")
	h.d.Publish(RoomTarget("NOPE00"), "notice", "none")

	assert.Equal(t, []string{"notice"}, h.out.Events("c1"))
	payload, ok := h.out.Last("c2", "notice")
	require.True(t, ok)
	assert.Equal(t, "one", payload)
}

func TestLeaveEventRemovesPlayer(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)

	require.NoError(t, h.d.Dispatch("c1", EventRoomLeave, nil))
	assert.Equal(t, []string{"p1"}, h.plugin.leaves)
	assert.NotEmpty(t, h.out.To("c1", EventRoomLeft))

	h.d.WithRoom(code, func(room *rooms.Room) {
		assert.Equal(t, "p2", room.HostID)
	})
}

func TestRoomLoggerCarriesRoomFields(t *testing.T) {
	var buf bytes.Buffer
	plugin := &stubPlugin{extra: map[string]Handler{
		"stub:log": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Logger().Info().Msg("GAMES: hello")
			return nil
		},
	}}
	d := New(Config{}, clock.NewFake(time.Now()), &partytest.Recorder{}, zerolog.New(&buf), plugin)
	t.Cleanup(d.Close)

	joined, err := d.CreateRoom("c1", CreateRequest{GameID: "stub", PlayerID: "p1"})
	require.NoError(t, err)
	buf.Reset()

	require.NoError(t, d.Dispatch("c1", "stub:log", nil))

	var line map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(raw, &entry))
		if entry["message"] == "GAMES: hello" {
			line = entry
		}
	}
	require.NotNil(t, line)
	assert.Equal(t, joined.Code, line["room"])
	assert.Equal(t, "stub", line["game"])
	assert.Equal(t, "GAMES: hello", line["message"])
}

func TestLeaveRevokesSessionToken(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	token := h.join(t, "c2", "p2", code).SessionToken

	require.NoError(t, h.d.Dispatch("c2", EventRoomLeave, nil))
	assert.Equal(t, 1, h.d.Stats().Sessions)

	joined, err := h.d.JoinRoom("c3", JoinRequest{Code: code, SessionToken: token})
	require.NoError(t, err)
	assert.False(t, joined.Reconnected)
	assert.NotEqual(t, "p2", joined.PlayerID)
}

func TestLastLeaveDeletesRoomAndSessions(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	assert.Equal(t, 1, h.d.Stats().Sessions)

	require.NoError(t, h.d.Leave("c1"))

	assert.Equal(t, 1, h.plugin.destroyed)
	assert.Equal(t, Stats{}, h.d.Stats())
	_, err := h.d.RoomSummary(code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDisconnectGraceRemovesPlayer(t *testing.T) {
	h := newHarness(t)
	code := h.create(t, "c1", "p1").Code
	h.join(t, "c2", "p2", code)

	h.d.Disconnect("c2")
	h.clk.Advance(rooms.DefaultPlayerGrace - time.Second)
	assert.Empty(t, h.plugin.leaves)

	h.clk.Advance(time.Second)
	assert.Equal(t, []string{"p2"}, h.plugin.leaves)

	summary, err := h.d.RoomSummary(code)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Players)
}

func TestLinkedRoomSurvivesEmptyUntilGrace(t *testing.T) {
	h := newHarness(t)
	joined, err := h.d.CreateRoom("c1", CreateRequest{GameID: "stub", PlayerID: "p1", Linked: true, PlatformSession: "ps-1"})
	require.NoError(t, err)

	require.NoError(t, h.d.Leave("c1"))
	summary, err := h.d.RoomSummary(joined.Code)
	require.NoError(t, err)
	assert.True(t, summary.Linked)
	assert.Zero(t, h.plugin.destroyed)

	h.clk.Advance(rooms.DefaultDeleteGrace)
	assert.Equal(t, 1, h.plugin.destroyed)
	assert.Zero(t, h.d.Stats().Rooms)
}

func TestTimersAfterAndClear(t *testing.T) {
	h := newHarness(t)
	fired := 0
	h.plugin.extra = map[string]Handler{
		"t:arm": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Timers().After("round", 10*time.Second, func(rc *RoomContext) { fired++ })
			return nil
		},
		"t:clear": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Timers().Clear("round")
			return nil
		},
	}
	h.create(t, "c1", "p1")

	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	h.clk.Advance(10 * time.Second)
	assert.Equal(t, 1, fired)

	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	require.NoError(t, h.d.Dispatch("c1", "t:clear", nil))
	h.clk.Advance(time.Minute)
	assert.Equal(t, 1, fired)

	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	h.clk.Advance(5 * time.Second)
	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 1, fired, "replaced timer must not fire")
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 2, fired)
}

func TestTimersEveryAndPanic(t *testing.T) {
	h := newHarness(t)
	ticks := 0
	var active bool
	h.plugin.extra = map[string]Handler{
		"t:tick": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Timers().Every("tick", time.Second, func(rc *RoomContext) {
				ticks++
				if ticks == 3 {
					panic("third tick")
				}
			})
			return nil
		},
		"t:arm": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			active = rc.Timers().Active("tick")
			return nil
		},
	}
	h.create(t, "c1", "p1")

	require.NoError(t, h.d.Dispatch("c1", "t:tick", nil))
	h.clk.Advance(2 * time.Second)
	assert.Equal(t, 2, ticks)

	h.clk.Advance(10 * time.Second)
	assert.Equal(t, 3, ticks)

	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	assert.False(t, active)
}

func TestTimersClearedOnRoomDeletion(t *testing.T) {
	h := newHarness(t)
	fired := false
	h.plugin.extra = map[string]Handler{
		"t:arm": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Timers().After("round", time.Second, func(rc *RoomContext) { fired = true })
			return nil
		},
	}
	h.create(t, "c1", "p1")

	require.NoError(t, h.d.Dispatch("c1", "t:arm", nil))
	require.NoError(t, h.d.Leave("c1"))

	h.clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.Zero(t, h.clk.Pending())
}

func TestGuards(t *testing.T) {
	g := newGuards()

	assert.True(t, g.TryEnter("reveal"))
	assert.False(t, g.TryEnter("reveal"))
	assert.True(t, g.Held("reveal"))

	g.Exit("reveal")
	assert.False(t, g.Held("reveal"))
	assert.True(t, g.TryEnter("reveal"))
}

func TestAsyncAppliesResultOnLoop(t *testing.T) {
	h := newHarness(t)
	h.plugin.extra = map[string]Handler{
		"a:go": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Async(func(ctx context.Context) func(*RoomContext) {
				return func(rc *RoomContext) {
					data, _ := rooms.Data[*stubData](rc.Room())
					data.Count = 42
					rc.BroadcastState()
				}
			})
			return nil
		},
	}
	h.create(t, "c1", "p1")

	require.NoError(t, h.d.Dispatch("c1", "a:go", nil))
	h.d.Wait()

	payload, ok := h.out.Last("c1", EventRoomState)
	require.True(t, ok)
	assert.Equal(t, 42, payload.(stubView).Count)
}

func TestAsyncDroppedAfterRoomDeleted(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	applied := false
	h.plugin.extra = map[string]Handler{
		"a:go": func(rc *RoomContext, connID string, payload json.RawMessage) error {
			rc.Async(func(ctx context.Context) func(*RoomContext) {
				<-release
				return func(rc *RoomContext) { applied = true }
			})
			return nil
		},
	}
	h.create(t, "c1", "p1")

	require.NoError(t, h.d.Dispatch("c1", "a:go", nil))
	require.NoError(t, h.d.Leave("c1"))
	close(release)
	h.d.Wait()

	assert.False(t, applied)
}

func TestSweepExpiresIdleRooms(t *testing.T) {
	h := newHarness(t)
	h.create(t, "c1", "p1")

	h.clk.Advance(rooms.DefaultIdleTimeout + time.Minute)
	roomCount, _ := h.d.Sweep()

	assert.Equal(t, 1, roomCount)
	assert.Equal(t, 1, h.plugin.destroyed)
	assert.Zero(t, h.d.Stats().Sessions)
}

func TestGames(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"stub"}, h.d.Games())
}

func TestDecode(t *testing.T) {
	var v struct{ A int }

	assert.NoError(t, Decode(nil, &v))
	assert.NoError(t, Decode(json.RawMessage("null"), &v))
	assert.NoError(t, Decode(json.RawMessage(`{"A":3}`), &v))
	assert.Equal(t, 3, v.A)

	err := Decode(json.RawMessage(`[`), &v)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestMergeSettings(t *testing.T) {
	defaults := rooms.Settings{MinPlayers: 2, MaxPlayers: 10, TimerDuration: 60, MaxLives: 3}

	assert.Equal(t, defaults, MergeSettings(defaults, nil))
	assert.Equal(t,
		rooms.Settings{MinPlayers: 2, MaxPlayers: 4, TimerDuration: 60, MaxLives: 3, VoiceMode: true},
		MergeSettings(defaults, &rooms.Settings{MaxPlayers: 4, VoiceMode: true}))
}
