// Package games implements the number duel played over /duel/ws.
//
// Two players are paired into a room, either by sharing a custom room name
// or by being matched with whoever is waiting in an anonymous room.
// Once the room is full, both players receive the same list of 50 distinct
// target numbers in [0, 2311), and after a three second countdown they race
// through it independently.
//
// How to play
// - Each guess is checked against the player's current target
// - A correct guess advances the player to the next target
// - Eight wrong guesses on the same target lose the game immediately
// - Giving up loses the game immediately
// - After five minutes the higher score wins, ties broken by the lower
//   average number of guesses per target
// - Disconnecting hands the win to the opponent
//
// Implementation details:
// - The registry is the only structure shared across rooms
// - Each room serializes its own players and session behind its own mutex
// - Timers are cancelled when a session ends, and every timer callback
//   re-checks that its session is still the live one before acting
// - The full answer list is sent up front; clients are trusted to wait for
//   the start signal
package games
