/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"errors"
	"math/rand/v2"

	"github.com/rs/zerolog"
)

// Matchmaker turns join requests into rooms and routes each connection's
// gameplay events to the session of the room it is in.
type Matchmaker struct {
	registry *Registry
	clock    Clock
	log      zerolog.Logger
	intn     func(int) int
}

func NewMatchmaker(registry *Registry, clock Clock, log zerolog.Logger) *Matchmaker {
	return &Matchmaker{
		registry: registry,
		clock:    clock,
		log:      log,
		intn:     rand.IntN,
	}
}

// Registry returns the registry the matchmaker places players into.
func (m *Matchmaker) Registry() *Registry {
	return m.registry
}

// PrepareGame places c into the custom room roomKey, or into any open
// anonymous room when roomKey is empty.
//
// A connection already in a live room is told so and left where it is.
// A connection whose game has ended leaves that room and joins afresh.
func (m *Matchmaker) PrepareGame(c Conn, roomKey string) {
	if current, ok := m.registry.RoomOf(c.ID()); ok {
		if current.Phase() != PhaseEnded {
			c.Send(EventAlreadyInRoom, current.Key())

			m.log.Debug().Str("conn", c.ID()).Str("room", current.Key()).Msg("join rejected, already in room")

			return
		}

		m.registry.detach(current)
	}

	var (
		room *Room
		err  error
	)

	if roomKey != "" {
		room, err = m.registry.FindOrCreateCustom(roomKey, c, m.joined)
	} else {
		room, err = m.registry.FindOpenAnonymousOrCreate(c, m.joined)
	}

	switch {
	case errors.Is(err, ErrRoomFull):
		c.Send(EventRoomFull, room.Key())
		c.Close()

		m.log.Info().Str("conn", c.ID()).Str("room", room.Key()).Msg("room full")
	case errors.Is(err, ErrAlreadyInRoom):
		if current, ok := m.registry.RoomOf(c.ID()); ok {
			c.Send(EventAlreadyInRoom, current.Key())
		}
	}
}

// joined runs under the registry and room locks.
func (m *Matchmaker) joined(room *Room, result JoinResult) {
	switch result {
	case JoinCreated:
		conns := room.connsLocked()
		conns[len(conns)-1].Send(EventWaiting, room.key)

		m.log.Info().Str("room", room.key).Msg("room created")
	case JoinPaired:
		for _, c := range room.connsLocked() {
			c.Send(EventOpponentFound, room.key)
		}

		room.session = &Session{
			room:    room,
			clock:   m.clock,
			log:     m.log,
			answers: newAnswers(m.intn),
		}
		room.session.startLocked()

		m.log.Info().Str("room", room.key).Msg("opponent found")
	}
}

// Guess submits a guess on behalf of c.
func (m *Matchmaker) Guess(c Conn, guess int) error {
	room, s, err := m.sessionOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	exhausted, err := s.guessLocked(c.ID(), guess)
	conns := room.connsLocked()
	room.mu.Unlock()

	if exhausted {
		m.registry.detach(room)

		for _, conn := range conns {
			conn.Close()
		}

		m.log.Info().Str("room", room.key).Str("conn", c.ID()).Msg("player ran out of guesses")
	}

	return err
}

// GiveUp forfeits the game on behalf of c.
func (m *Matchmaker) GiveUp(c Conn) error {
	room, s, err := m.sessionOf(c)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if err := s.giveUpLocked(c.ID()); err != nil {
		return err
	}

	m.log.Info().Str("room", room.key).Str("conn", c.ID()).Msg("player gave up")

	return nil
}

func (m *Matchmaker) sessionOf(c Conn) (*Room, *Session, error) {
	room, ok := m.registry.RoomOf(c.ID())
	if !ok {
		return nil, nil, ErrNoSession
	}

	room.mu.Lock()
	s := room.session
	room.mu.Unlock()

	if s == nil {
		return nil, nil, ErrNoSession
	}

	return room, s, nil
}

// Disconnect tears down the room c was in. An opponent still waiting on
// an unfinished game is awarded the win.
func (m *Matchmaker) Disconnect(c Conn) {
	room, ok := m.registry.RoomOf(c.ID())
	if !ok {
		return
	}

	if m.registry.detach(room) == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	live := true
	if s := room.session; s != nil {
		live = s.phase != PhaseEnded
		if live {
			s.endLocked()
		}
	}

	opp := room.opponentLocked(c.ID())
	if live && opp != nil {
		deliver(Relay(room.snapshotLocked(), Resolution{Kind: KindOpponentDisconnected, Reason: ReasonDisconnected, Actor: opp.conn}))
	}

	m.log.Info().Str("room", room.key).Str("conn", c.ID()).Msg("player disconnected")
}
