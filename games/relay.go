/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

// Outbound event names.
const (
	EventConnected            = "connected"
	EventWaiting              = "waiting-for-opponent"
	EventOpponentFound        = "opponent-found"
	EventRoomFull             = "room-full"
	EventAlreadyInRoom        = "already-in-room"
	EventAnswers              = "answers"
	EventStart                = "start"
	EventCorrect              = "correct"
	EventIncorrect            = "incorrect"
	EventOpponentCorrect      = "opponent-correct"
	EventWin                  = "win"
	EventLose                 = "lose"
	EventTie                  = "tie"
	EventOpponentDisconnected = "opponent-disconnected"
)

// PlayerState is the client-visible part of a Player.
type PlayerState struct {
	Score      int     `json:"score"`
	Guesses    int     `json:"guesses"`
	AvgGuesses float64 `json:"avgGuesses"`
}

// Snapshot maps connection ids to player state at one point in time.
type Snapshot map[string]PlayerState

// Notice is the payload of every gameplay event.
type Notice struct {
	Game    Snapshot `json:"game"`
	Player  string   `json:"player"`
	Outcome string   `json:"outcome,omitempty"`
	Answer  *int     `json:"answer,omitempty"`
}

// Message is one outbound event addressed to a single connection.
type Message struct {
	To    Conn
	Event string
	Data  any
}

// Kind identifies what a session decided.
type Kind int

const (
	KindCorrect Kind = iota
	KindIncorrect
	KindResult
	KindTie
	KindOpponentDisconnected
)

// Reason explains why a game ended.
type Reason int

const (
	ReasonTimeout Reason = iota
	ReasonExhausted
	ReasonGaveUp
	ReasonDisconnected
)

// Resolution is a session decision. Actor is the player it is about (the
// guesser, or the winner for results); Other is the opponent.
type Resolution struct {
	Kind   Kind
	Reason Reason
	Actor  Conn
	Other  Conn
	Answer *int
}

var winOutcomes = map[Reason]string{
	ReasonTimeout:      "Time's up! You won!",
	ReasonExhausted:    "You win! Your opponent ran out of guesses!",
	ReasonGaveUp:       "You win! Your opponent gave up!",
	ReasonDisconnected: "You win! Your opponent disconnected!",
}

var loseOutcomes = map[Reason]string{
	ReasonTimeout:   "Time's up! You lost!",
	ReasonExhausted: "You lost! You ran out of guesses!",
	ReasonGaveUp:    "You lost! You gave up!",
}

const tieOutcome = "Time's up! Amazing, an exact tie!"

// Relay shapes a resolution into addressed messages. This server sends
// results to the loser before the winner; clients must not rely on it.
func Relay(game Snapshot, r Resolution) []Message {
	notice := func(to Conn, outcome string, answer *int) Notice {
		return Notice{
			Game:    game,
			Player:  to.ID(),
			Outcome: outcome,
			Answer:  answer,
		}
	}

	var out []Message

	switch r.Kind {
	case KindCorrect:
		out = append(out, Message{To: r.Actor, Event: EventCorrect, Data: notice(r.Actor, "", r.Answer)})
		if r.Other != nil {
			out = append(out, Message{To: r.Other, Event: EventOpponentCorrect, Data: notice(r.Other, "", nil)})
		}
	case KindIncorrect:
		out = append(out, Message{To: r.Actor, Event: EventIncorrect, Data: notice(r.Actor, "", nil)})
	case KindResult:
		if r.Other != nil {
			out = append(out, Message{To: r.Other, Event: EventLose, Data: notice(r.Other, loseOutcomes[r.Reason], nil)})
		}
		if r.Actor != nil {
			out = append(out, Message{To: r.Actor, Event: EventWin, Data: notice(r.Actor, winOutcomes[r.Reason], nil)})
		}
	case KindTie:
		out = append(out, Message{To: r.Actor, Event: EventTie, Data: notice(r.Actor, tieOutcome, nil)})
		if r.Other != nil {
			out = append(out, Message{To: r.Other, Event: EventTie, Data: notice(r.Other, tieOutcome, nil)})
		}
	case KindOpponentDisconnected:
		out = append(out, Message{To: r.Actor, Event: EventOpponentDisconnected, Data: notice(r.Actor, winOutcomes[ReasonDisconnected], nil)})
	}

	return out
}

func deliver(msgs []Message) {
	for _, m := range msgs {
		m.To.Send(m.Event, m.Data)
	}
}
