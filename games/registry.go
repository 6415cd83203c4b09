/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"strconv"
	"sync"
	"time"
)

// JoinResult tells a joiner what happened to the room it landed in.
type JoinResult int

const (
	// JoinCreated means the joiner opened a new room and is waiting.
	JoinCreated JoinResult = iota
	// JoinPaired means the joiner completed a room.
	JoinPaired
)

// JoinFunc runs while both the registry and the joined room are locked,
// so nothing can observe the new player before it returns. It must not
// block.
type JoinFunc func(room *Room, result JoinResult)

// Registry maps room keys to rooms for the lifetime of the process.
// Lock order is registry, then room.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	members map[string]*Room
	lastKey int64
	clock   Clock
}

func NewRegistry(clock Clock) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]*Room),
		clock:   clock,
	}
}

// FindOrCreateCustom joins c to the custom room called name, creating it
// if needed. A room that already holds two players is never merged into.
func (r *Registry) FindOrCreateCustom(name string, c Conn, fn JoinFunc) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c.ID()]; ok {
		return nil, ErrAlreadyInRoom
	}

	key := customKey(name)

	room, ok := r.rooms[key]
	if !ok {
		room = newRoom(key)
		r.rooms[key] = room

		r.joinLocked(room, c, JoinCreated, fn)

		return room, nil
	}

	room.mu.Lock()
	full := len(room.players) >= MaxPlayers || room.session != nil
	room.mu.Unlock()

	if full {
		return room, ErrRoomFull
	}

	r.joinLocked(room, c, JoinPaired, fn)

	return room, nil
}

// FindOpenAnonymousOrCreate joins c to an anonymous room with someone
// waiting in it, or opens a new one under a fresh key.
func (r *Registry) FindOpenAnonymousOrCreate(c Conn, fn JoinFunc) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c.ID()]; ok {
		return nil, ErrAlreadyInRoom
	}

	for key, room := range r.rooms {
		if isCustomKey(key) {
			continue
		}

		room.mu.Lock()
		open := len(room.players) == 1 && room.session == nil
		room.mu.Unlock()

		if open {
			r.joinLocked(room, c, JoinPaired, fn)

			return room, nil
		}
	}

	room := newRoom(r.nextAnonymousKeyLocked())
	r.rooms[room.key] = room

	r.joinLocked(room, c, JoinCreated, fn)

	return room, nil
}

func (r *Registry) joinLocked(room *Room, c Conn, result JoinResult, fn JoinFunc) {
	room.mu.Lock()
	defer room.mu.Unlock()

	room.addLocked(c)
	r.members[c.ID()] = room

	if fn != nil {
		fn(room, result)
	}
}

// nextAnonymousKeyLocked derives a key from the current time in
// milliseconds, bumped past the previous key so keys never repeat.
func (r *Registry) nextAnonymousKeyLocked() string {
	ms := r.clock.Now().UnixMilli()
	if ms <= r.lastKey {
		ms = r.lastKey + 1
	}
	r.lastKey = ms

	return strconv.FormatInt(ms, 10)
}

// Lookup returns the room registered under key.
func (r *Registry) Lookup(key string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[key]

	return room, ok
}

// RoomOf returns the room the connection is currently a member of.
func (r *Registry) RoomOf(connID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[connID]

	return room, ok
}

// Remove deletes the room under key and releases its members. Removing a
// missing key is a no-op.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	room, ok := r.rooms[key]
	r.mu.Unlock()

	if ok {
		r.detach(room)
	}
}

// detach removes room if it is still the one registered under its key,
// and returns the connections that were in it.
func (r *Registry) detach(room *Room) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room.key] != room {
		return nil
	}
	delete(r.rooms, room.key)

	room.mu.Lock()
	defer room.mu.Unlock()

	room.removed = true

	for _, id := range room.order {
		if r.members[id] == room {
			delete(r.members, id)
		}
	}

	return room.connsLocked()
}

// Reap dissolves rooms whose game ended before cutoff and closes their
// connections. It returns the number of rooms removed.
func (r *Registry) Reap(cutoff time.Time) int {
	r.mu.Lock()

	var stale []*Room

	for _, room := range r.rooms {
		room.mu.Lock()
		s := room.session
		if s != nil && s.phase == PhaseEnded && s.endedAt.Before(cutoff) {
			stale = append(stale, room)
		}
		room.mu.Unlock()
	}

	r.mu.Unlock()

	reaped := 0

	for _, room := range stale {
		conns := r.detach(room)
		if conns == nil {
			continue
		}

		reaped++

		for _, c := range conns {
			c.Close()
		}
	}

	return reaped
}

// Stats summarizes the registry.
type Stats struct {
	Rooms   int `json:"rooms"`
	Waiting int `json:"waiting"`
	Playing int `json:"playing"`
	Ended   int `json:"ended"`
	Players int `json:"players"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{Rooms: len(r.rooms), Players: len(r.members)}

	for _, room := range r.rooms {
		room.mu.Lock()
		switch room.phaseLocked() {
		case PhaseForming:
			st.Waiting++
		case PhaseEnded:
			st.Ended++
		default:
			st.Playing++
		}
		room.mu.Unlock()
	}

	return st
}
