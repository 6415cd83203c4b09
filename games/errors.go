/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import "errors"

var (
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("connection is already in a room")
	ErrInvalidGuessTarget = errors.New("no guess target for this player")
	ErrNoSession          = errors.New("connection has no active session")
)
