/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/numberduel/games"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		port:           8080,
		rateLimit:      100,
		rateBurst:      100,
		sessionTimeout: time.Minute,
		logger:         zerolog.Nop(),
	}
}

func newTestServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mux := httprouter.New()
	errs := make(chan error, 8)

	registerDuelGame(ctx, cfg, "/duel", mux, errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/duel/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func next(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

// nextResult skips the countdown's start event, which may land first on a
// slow run.
func nextResult(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	for {
		f := next(t, conn)
		if f.Event != games.EventStart {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}

	require.NoError(t, conn.WriteJSON(msg))
}

func TestDuelOverWebsocket(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := dial(t, srv)
	assert.Equal(t, games.EventConnected, next(t, a).Event)

	send(t, a, "join-room", "abc")

	waiting := next(t, a)
	require.Equal(t, games.EventWaiting, waiting.Event)
	assert.JSONEq(t, `"custom_abc"`, string(waiting.Data))

	b := dial(t, srv)
	assert.Equal(t, games.EventConnected, next(t, b).Event)

	send(t, b, "join-room", "  abc  ")

	for _, conn := range []*websocket.Conn{a, b} {
		found := next(t, conn)
		require.Equal(t, games.EventOpponentFound, found.Event)
		assert.JSONEq(t, `"custom_abc"`, string(found.Data))

		answers := next(t, conn)
		require.Equal(t, games.EventAnswers, answers.Event)

		var values []int
		require.NoError(t, json.Unmarshal(answers.Data, &values))
		assert.Len(t, values, games.AnswerCount)
	}

	c := dial(t, srv)
	assert.Equal(t, games.EventConnected, next(t, c).Event)

	send(t, c, "join-room", "abc")

	full := next(t, c)
	assert.Equal(t, games.EventRoomFull, full.Event)

	send(t, a, "give-up", nil)

	lose := nextResult(t, a)
	require.Equal(t, games.EventLose, lose.Event)

	var notice games.Notice
	require.NoError(t, json.Unmarshal(lose.Data, &notice))
	assert.Equal(t, "You lost! You gave up!", notice.Outcome)
	assert.Len(t, notice.Game, 2)

	assert.Equal(t, games.EventWin, nextResult(t, b).Event)
}

func TestDisconnectOverWebsocket(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := dial(t, srv)
	next(t, a)
	send(t, a, "join-room", nil)
	require.Equal(t, games.EventWaiting, next(t, a).Event)

	b := dial(t, srv)
	next(t, b)
	send(t, b, "join-room", "")

	assert.Equal(t, games.EventOpponentFound, next(t, b).Event)
	assert.Equal(t, games.EventAnswers, next(t, b).Event)

	require.NoError(t, a.Close())

	assert.Equal(t, games.EventOpponentDisconnected, nextResult(t, b).Event)
}

func TestMalformedGuessCounts(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := dial(t, srv)
	next(t, a)
	send(t, a, "join-room", "malformed")
	require.Equal(t, games.EventWaiting, next(t, a).Event)

	b := dial(t, srv)
	next(t, b)
	send(t, b, "join-room", "malformed")

	require.Equal(t, games.EventOpponentFound, next(t, a).Event)
	require.Equal(t, games.EventAnswers, next(t, a).Event)
	require.Equal(t, games.EventStart, next(t, a).Event)

	for i, data := range []any{"42", 42.5, nil} {
		send(t, a, "guess", data)

		got := next(t, a)
		require.Equal(t, games.EventIncorrect, got.Event)

		var notice games.Notice
		require.NoError(t, json.Unmarshal(got.Data, &notice))
		assert.Equal(t, i+1, notice.Game[notice.Player].Guesses)
	}
}

func TestReaperIgnoresTinyTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.sessionTimeout = time.Nanosecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		reaperLoop(ctx, cfg, games.NewRegistry(games.RealClock()))
	}()

	cancel()
	<-done
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := dial(t, srv)
	next(t, a)
	send(t, a, "join-room", "lonely")
	next(t, a)

	resp, err := http.Get(srv.URL + "/duel/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats games.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, games.Stats{Rooms: 1, Waiting: 1, Players: 1}, stats)
}

func TestQRCode(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/duel/room/abc/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		header string
		want   bool
	}{
		{"no origin header", "", "", true},
		{"same host", "", "http://duel.test", true},
		{"other host", "", "http://evil.test", false},
		{"configured origin", "https://client.test", "https://client.test", true},
		{"unconfigured origin", "https://client.test", "https://evil.test", false},
		{"wildcard", "*", "https://anything.test", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.origin = tt.origin

			r := httptest.NewRequest(http.MethodGet, "http://duel.test/duel/ws", nil)
			if tt.header != "" {
				r.Header.Set("Origin", tt.header)
			}

			assert.Equal(t, tt.want, checkOrigin(cfg)(r))
		})
	}
}

func TestRoomLink(t *testing.T) {
	cfg := testConfig()
	cfg.prefix = "/games"

	r := httptest.NewRequest(http.MethodGet, "http://duel.test/games/duel/room/a%20b/qr", nil)
	assert.Equal(t, "http://duel.test/games/?room=a+b", roomLink(cfg, r, "a b"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://duel.test/games/?room=abc", roomLink(cfg, r, "abc"))

	cfg.origin = "https://client.test/"
	assert.Equal(t, "https://client.test/?room=abc", roomLink(cfg, r, "abc"))
}

func TestClientSendAfterClose(t *testing.T) {
	c := &Client{
		id:   "closed",
		send: make(chan ServerMessage, 1),
		done: make(chan struct{}),
	}

	c.Close()
	c.Close()
	c.Send(games.EventWin, nil)

	assert.Empty(t, c.send)
}
