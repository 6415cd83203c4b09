// Number duel transport
//
// Each websocket connection is one player. The connection is identified
// by a random UUID assigned on upgrade; nothing else is known about it.
//
// Features:
// - WebSocket at /duel/ws, JSON frames of the form {"event": ..., "data": ...}
// - join-room with a name pairs players sharing that name; without one
//   players are matched with whoever is waiting
// - guess and give-up are routed to the room's session
// - Closing the socket forfeits any unfinished game
// - Inbound events are rate limited per connection
// - Rooms whose game ended are reaped after the configured timeout
// - QR code at /duel/room/:name/qr to share a custom room, backed by go-qrcode
// - Registry stats at /duel/stats

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/numberduel/games"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32

	// unparsedGuess never matches an answer, so a malformed guess still
	// costs the player a try.
	unparsedGuess = -1
)

// ClientMessage is an inbound event.
type ClientMessage struct {
	Event string          `json:"event"` // "join-room", "guess", "give-up"
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is an outbound event.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one websocket connection. It implements games.Conn.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan ServerMessage
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func newClient(cfg *Config, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan ServerMessage, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.rateLimit), cfg.rateBurst),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues an event for the write pump. A client too slow to drain its
// queue is disconnected.
func (c *Client) Send(event string, data any) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- ServerMessage{Event: event, Data: data}:
	default:
		c.Close()
	}
}

// Close flushes queued events and closes the socket.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump(cfg *Config, m *games.Matchmaker) {
	defer func() {
		m.Disconnect(c)
		c.Close()
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !c.limiter.Allow() {
			logf(cfg, "DUELS: Dropped %q from %s (rate limited)", msg.Event, c.id)

			continue
		}

		switch msg.Event {
		case "join-room":
			var room string
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &room); err != nil {
					continue
				}
			}

			m.PrepareGame(c, games.RoomName(room))
		case "guess":
			var guess int
			if err := json.Unmarshal(msg.Data, &guess); err != nil {
				guess = unparsedGuess
			}

			if err := m.Guess(c, guess); err != nil {
				logf(cfg, "DUELS: Ignored guess from %s: %v", c.id, err)
			}
		case "give-up":
			if err := m.GiveUp(c); err != nil {
				logf(cfg, "DUELS: Ignored give-up from %s: %v", c.id, err)
			}
		default:
			// ignore unknown events
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			return
		}
	}
}

// flush writes whatever is still queued, so a closing client still sees
// the event that explains why.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// checkOrigin admits same-host requests, plus the single configured
// cross-origin caller. An origin of "*" admits everyone.
func checkOrigin(cfg *Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || cfg.origin == "*" {
			return true
		}

		if cfg.origin != "" && strings.EqualFold(origin, cfg.origin) {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}

		return strings.EqualFold(u.Host, r.Host)
	}
}

func serveDuelWS(cfg *Config, m *games.Matchmaker) httprouter.Handle {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg),
	}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "DUELS: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := newClient(cfg, conn)

		logf(cfg, "DUELS: %s connected from %s", client.id, realIP(r))

		client.Send(games.EventConnected, nil)

		go client.writePump()
		client.readPump(cfg, m)

		logf(cfg, "DUELS: %s disconnected", client.id)
	}
}

func serveStats(cfg *Config, m *games.Matchmaker, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(m.Registry().Stats()); err != nil {
			errs <- err
		}
	}
}

// roomLink builds the address players open to join a custom room. The
// configured origin hosts the client when there is one; otherwise the
// link points back at this server.
func roomLink(cfg *Config, r *http.Request, name string) string {
	base := cfg.origin
	if base == "" || base == "*" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + cfg.prefix
	}

	return strings.TrimSuffix(base, "/") + "/?room=" + url.QueryEscape(name)
}

// QR handler: generates a PNG QR code for a custom room link using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		name := games.RoomName(ps.ByName("name"))
		if name == "" {
			http.Error(w, "missing room name", http.StatusBadRequest)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(roomLink(cfg, r, name), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// reaperLoop periodically dissolves rooms whose game ended more than
// sessionTimeout ago.
func reaperLoop(ctx context.Context, cfg *Config, reg *games.Registry) {
	ticker := time.NewTicker(max(cfg.sessionTimeout, minSessionTimeout) / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := reg.Reap(now.Add(-cfg.sessionTimeout)); n > 0 {
				logf(cfg, "DUELS: Reaped %d finished room(s)", n)
			}
		}
	}
}

// registerDuelGame sets up routes so that:
//   - $path/ws               → WebSocket for players
//   - $path/stats            → JSON registry stats
//   - $path/room/:name/qr    → PNG QR code sharing a custom room
func registerDuelGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, errs chan<- error) *games.Matchmaker {
	reg := games.NewRegistry(games.RealClock())
	m := games.NewMatchmaker(reg, games.RealClock(), cfg.logger)

	if cfg.sessionTimeout > 0 {
		go reaperLoop(ctx, cfg, reg)
	}

	mux.GET(cfg.prefix+path+"/ws", serveDuelWS(cfg, m))

	mux.GET(cfg.prefix+path+"/stats", serveStats(cfg, m, errs))

	mux.GET(cfg.prefix+path+"/room/:name/qr", qrHandler(cfg))

	return m
}
