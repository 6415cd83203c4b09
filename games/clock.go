/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import "time"

// Timer is a cancellable deferred call.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred calls. Sessions use it for the countdown and
// the end-of-game limit so tests can drive time by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock is backed by the time package.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
