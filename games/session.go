/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	AnswerCount = 50
	AnswerRange = 2311
	MaxGuesses  = 8

	StartDelay = 3 * time.Second
	GameLength = 300 * time.Second
)

// Phase is the state of a session.
type Phase int

const (
	PhaseForming Phase = iota
	PhaseCountdown
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseForming:
		return "forming"
	case PhaseCountdown:
		return "countdown"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	}

	return "unknown"
}

// Session is the game played in one full room. All of its state is
// guarded by the room mutex; a room gets at most one session.
type Session struct {
	room    *Room
	clock   Clock
	log     zerolog.Logger
	answers []int
	phase   Phase

	startTimer Timer
	endTimer   Timer
	endedAt    time.Time
}

// Answers returns a copy of the answer sequence.
func (s *Session) Answers() []int {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()

	return append([]int(nil), s.answers...)
}

// newAnswers draws AnswerCount distinct values in [0, AnswerRange),
// redrawing on duplicates.
func newAnswers(intn func(int) int) []int {
	seen := make(map[int]bool, AnswerCount)
	answers := make([]int, 0, AnswerCount)

	for len(answers) < AnswerCount {
		n := intn(AnswerRange)
		if seen[n] {
			continue
		}
		seen[n] = true
		answers = append(answers, n)
	}

	return answers
}

// startLocked moves a freshly paired room into the countdown. r.mu is held.
func (s *Session) startLocked() {
	s.phase = PhaseCountdown

	for _, c := range s.room.connsLocked() {
		c.Send(EventAnswers, s.answers)
	}

	s.startTimer = s.clock.AfterFunc(StartDelay, s.begin)
}

// staleLocked reports whether a timer or event belongs to a session that is
// no longer live in its room.
func (s *Session) staleLocked(want Phase) bool {
	return s.room.removed || s.room.session != s || s.phase != want
}

func (s *Session) begin() {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()

	if s.staleLocked(PhaseCountdown) {
		return
	}

	s.phase = PhaseActive

	for _, c := range s.room.connsLocked() {
		c.Send(EventStart, s.answers[0])
	}

	s.endTimer = s.clock.AfterFunc(GameLength, s.timeUp)

	s.log.Debug().Str("room", s.room.key).Msg("game started")
}

func (s *Session) timeUp() {
	s.room.mu.Lock()
	defer s.room.mu.Unlock()

	if s.staleLocked(PhaseActive) {
		return
	}

	s.endLocked()

	conns := s.room.connsLocked()
	if len(conns) < MaxPlayers {
		return
	}

	a, b := s.room.players[conns[0].ID()], s.room.players[conns[1].ID()]
	game := s.room.snapshotLocked()

	switch cmp := compare(stateOf(a), stateOf(b)); {
	case cmp > 0:
		deliver(Relay(game, Resolution{Kind: KindResult, Reason: ReasonTimeout, Actor: a.conn, Other: b.conn}))
	case cmp < 0:
		deliver(Relay(game, Resolution{Kind: KindResult, Reason: ReasonTimeout, Actor: b.conn, Other: a.conn}))
	default:
		deliver(Relay(game, Resolution{Kind: KindTie, Reason: ReasonTimeout, Actor: a.conn, Other: b.conn}))
	}

	s.log.Info().Str("room", s.room.key).Msg("game timed out")
}

// compare ranks a against b: higher score wins, then lower average.
func compare(a, b PlayerState) int {
	switch {
	case a.Score != b.Score:
		if a.Score > b.Score {
			return 1
		}
		return -1
	case a.AvgGuesses != b.AvgGuesses:
		if a.AvgGuesses < b.AvgGuesses {
			return 1
		}
		return -1
	}

	return 0
}

func stateOf(p *Player) PlayerState {
	return PlayerState{Score: p.Score, Guesses: p.Guesses, AvgGuesses: p.AvgGuesses}
}

// endLocked makes the session terminal and cancels its timers.
func (s *Session) endLocked() {
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	if s.endTimer != nil {
		s.endTimer.Stop()
	}

	s.phase = PhaseEnded
	s.endedAt = s.clock.Now()
}

// guessLocked applies one guess from the player with the given id. It
// reports whether the guesser ran out of guesses, in which case the
// session has ended and the room must be torn down.
func (s *Session) guessLocked(id string, guess int) (bool, error) {
	if s.staleLocked(PhaseActive) {
		return false, ErrInvalidGuessTarget
	}

	p, ok := s.room.players[id]
	if !ok || p.Score >= len(s.answers) {
		return false, ErrInvalidGuessTarget
	}

	p.Guesses++

	var other Conn
	if opp := s.room.opponentLocked(id); opp != nil {
		other = opp.conn
	}

	if guess == s.answers[p.Score] {
		p.recordCorrect()

		var next *int
		if p.Score < len(s.answers) {
			v := s.answers[p.Score]
			next = &v
		}

		deliver(Relay(s.room.snapshotLocked(), Resolution{Kind: KindCorrect, Actor: p.conn, Other: other, Answer: next}))

		return false, nil
	}

	if p.Guesses >= MaxGuesses {
		s.endLocked()

		deliver(Relay(s.room.snapshotLocked(), Resolution{Kind: KindResult, Reason: ReasonExhausted, Actor: other, Other: p.conn}))

		return true, nil
	}

	deliver(Relay(s.room.snapshotLocked(), Resolution{Kind: KindIncorrect, Actor: p.conn}))

	return false, nil
}

// giveUpLocked forfeits the game for the player with the given id.
// Connections stay open.
func (s *Session) giveUpLocked(id string) error {
	if s.staleLocked(PhaseCountdown) && s.staleLocked(PhaseActive) {
		return ErrInvalidGuessTarget
	}

	p, ok := s.room.players[id]
	if !ok {
		return ErrInvalidGuessTarget
	}

	var other Conn
	if opp := s.room.opponentLocked(id); opp != nil {
		other = opp.conn
	}

	s.endLocked()

	deliver(Relay(s.room.snapshotLocked(), Resolution{Kind: KindResult, Reason: ReasonGaveUp, Actor: other, Other: p.conn}))

	return nil
}
