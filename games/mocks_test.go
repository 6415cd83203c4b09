package games

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

type sent struct {
	event string
	data  any
}

// recordingConn keeps every event sent to it.
type recordingConn struct {
	id string

	mu     sync.Mutex
	events []sent
	closed bool
}

func newConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(event string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, sent{event: event, data: data})
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

func (c *recordingConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.event)
	}

	return names
}

func (c *recordingConn) last() sent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.events) == 0 {
		return sent{}
	}

	return c.events[len(c.events)-1]
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// MockConn is a testify mock of Conn.
type MockConn struct {
	mock.Mock
	id string
}

func (m *MockConn) ID() string { return m.id }

func (m *MockConn) Send(event string, data any) {
	m.Called(event, data)
}

func (m *MockConn) Close() {
	m.Called()
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.stopped && !t.fired
	t.stopped = true

	return active
}

// fakeClock only moves when Advance is called. Due callbacks run on the
// caller's goroutine, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)

	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}

	return n
}

func newTestMatchmaker() (*Matchmaker, *fakeClock) {
	clock := newFakeClock()

	m := NewMatchmaker(NewRegistry(clock), clock, zerolog.Nop())
	m.intn = rand.New(rand.NewPCG(1, 2)).IntN

	return m, clock
}

// pair seats two fresh connections in the named room.
func pair(m *Matchmaker, name string) (*recordingConn, *recordingConn, *Room) {
	a, b := newConn("a"), newConn("b")

	m.PrepareGame(a, name)
	m.PrepareGame(b, name)

	room, _ := m.registry.RoomOf(a.ID())

	return a, b, room
}

// play pairs two connections and runs the countdown out.
func play(m *Matchmaker, clock *fakeClock, name string) (*recordingConn, *recordingConn, *Room) {
	a, b, room := pair(m, name)

	clock.Advance(StartDelay)

	return a, b, room
}

func notice(t sent) Notice {
	n, _ := t.data.(Notice)

	return n
}
