/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"strings"
	"sync"
)

const (
	// MaxPlayers is the number of players in a full room.
	MaxPlayers = 2

	customPrefix = "custom_"
)

// Conn is one client's bidirectional channel, as seen by the game.
// Send must not block.
type Conn interface {
	ID() string
	Send(event string, data any)
	Close()
}

// Player holds the per-player game state. It is only mutated by its
// room's session, in response to that player's own events.
type Player struct {
	Score      int
	Guesses    int
	AvgGuesses float64

	conn Conn
}

// recordCorrect folds the guesses spent on the target just solved into the
// running average, then moves the player on to the next target.
func (p *Player) recordCorrect() {
	p.AvgGuesses = (p.AvgGuesses*float64(p.Score) + float64(p.Guesses)) / float64(p.Score+1)
	p.Guesses = 0
	p.Score++
}

// Room pairs up to two players. Its mutex guards players and session.
type Room struct {
	key string

	mu      sync.Mutex
	players map[string]*Player
	order   []string
	session *Session
	removed bool
}

func newRoom(key string) *Room {
	return &Room{
		key:     key,
		players: make(map[string]*Player, MaxPlayers),
		order:   make([]string, 0, MaxPlayers),
	}
}

// Key returns the registry key of the room.
func (r *Room) Key() string {
	return r.key
}

// Custom reports whether the room was created from a user-chosen name.
func (r *Room) Custom() bool {
	return isCustomKey(r.key)
}

// PlayerCount returns the number of players currently in the room.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.players)
}

// Phase returns the phase of the room's session, or PhaseForming if the
// room has not been paired yet.
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.phaseLocked()
}

func (r *Room) phaseLocked() Phase {
	if r.session == nil {
		return PhaseForming
	}

	return r.session.phase
}

// addLocked assumes r.mu is held and the room has space.
func (r *Room) addLocked(c Conn) *Player {
	p := &Player{conn: c}
	r.players[c.ID()] = p
	r.order = append(r.order, c.ID())

	return p
}

// opponentLocked returns the other player in the room, if any.
func (r *Room) opponentLocked(id string) *Player {
	for _, pid := range r.order {
		if pid != id {
			return r.players[pid]
		}
	}

	return nil
}

// connsLocked returns the room's connections in join order.
func (r *Room) connsLocked() []Conn {
	conns := make([]Conn, 0, len(r.order))
	for _, id := range r.order {
		conns = append(conns, r.players[id].conn)
	}

	return conns
}

// snapshotLocked copies the players' state without their connections.
func (r *Room) snapshotLocked() Snapshot {
	s := make(Snapshot, len(r.players))
	for id, p := range r.players {
		s[id] = PlayerState{
			Score:      p.Score,
			Guesses:    p.Guesses,
			AvgGuesses: p.AvgGuesses,
		}
	}

	return s
}

func customKey(name string) string {
	return customPrefix + name
}

func isCustomKey(key string) bool {
	return strings.HasPrefix(key, customPrefix)
}

// MaxRoomName bounds the length of a custom room name, in runes.
const MaxRoomName = 64

// RoomName normalizes a user-supplied custom room name. An empty result
// means the player asked for a random opponent.
func RoomName(s string) string {
	s = strings.TrimSpace(s)

	if r := []rune(s); len(r) > MaxRoomName {
		s = string(r[:MaxRoomName])
	}

	return s
}
