// Package scheduler drives the per-room countdowns behind every timed game
// phase, plus one-shot delayed actions. Each room's callbacks are serialized
// on a per-room lock, so a tick, a completion, and a delayed action never
// run concurrently for the same room.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"suljari/internal/metrics"
)

// Scheduler owns all room timers. At most one countdown runs per room;
// starting a new one replaces the old. Cancel and CleanupRoom must not be
// called from inside a timer callback (they wait for in-flight callbacks);
// StartCountdown and ScheduleDelayed are safe anywhere.
type Scheduler struct {
	mu    sync.Mutex
	rooms map[string]*roomTimers
	log   *zap.SugaredLogger
}

type roomTimers struct {
	// run serializes every callback fired for this room.
	run sync.Mutex

	countdown *countdown
	delayed   map[uint64]*time.Timer
	nextID    uint64
}

type countdown struct {
	cancel chan struct{}
	done   chan struct{}
}

func New(log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		rooms: make(map[string]*roomTimers),
		log:   log,
	}
}

// room returns the timer slot for roomID, creating it if needed. Caller
// holds s.mu.
func (s *Scheduler) room(roomID string) *roomTimers {
	rt, ok := s.rooms[roomID]
	if !ok {
		rt = &roomTimers{delayed: make(map[uint64]*time.Timer)}
		s.rooms[roomID] = rt
	}
	return rt
}

// StartCountdown arms the room countdown. onTick fires once per second with
// the post-decrement remaining value (first tick carries seconds-1, last
// carries 0); onComplete fires exactly once after the 0 tick. Any countdown
// already running on the room is replaced and will not fire again. A
// non-positive duration is a no-op.
func (s *Scheduler) StartCountdown(roomID string, seconds int, onTick func(remaining int), onComplete func()) {
	if seconds <= 0 {
		return
	}

	c := &countdown{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	rt := s.room(roomID)
	if old := rt.countdown; old != nil {
		close(old.cancel)
	}
	rt.countdown = c
	s.mu.Unlock()

	metrics.TimersStarted.Inc()
	s.log.Debugw("countdown started", "room", roomID, "seconds", seconds)

	go s.runCountdown(roomID, rt, c, seconds, onTick, onComplete)
}

func (s *Scheduler) runCountdown(roomID string, rt *roomTimers, c *countdown, seconds int, onTick func(int), onComplete func()) {
	defer close(c.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := seconds
	for remaining > 0 {
		select {
		case <-c.cancel:
			return
		case <-ticker.C:
			remaining--
			r := remaining
			if !s.fireCountdown(roomID, rt, c, func() {
				if onTick != nil {
					onTick(r)
				}
			}) {
				return
			}
		}
	}

	if onComplete != nil {
		s.fireCountdown(roomID, rt, c, onComplete)
	}
}

// fireCountdown runs fn under the room lock, but only while c is still the
// room's live countdown. Reports whether the countdown should keep going.
func (s *Scheduler) fireCountdown(roomID string, rt *roomTimers, c *countdown, fn func()) bool {
	rt.run.Lock()
	defer rt.run.Unlock()

	s.mu.Lock()
	live := rt.countdown == c
	s.mu.Unlock()
	if !live {
		return false
	}

	s.invoke(roomID, fn)
	return true
}

// invoke guards a callback against panics. Caller holds rt.run.
func (s *Scheduler) invoke(roomID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("timer callback panicked", "room", roomID, "panic", r)
		}
	}()
	fn()
}

// Cancel stops the room countdown. Idempotent. When Cancel returns, neither
// a tick nor the completion will fire: a cancel racing the final tick wins.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	rt, ok := s.rooms[roomID]
	var c *countdown
	if ok {
		c = rt.countdown
		rt.countdown = nil
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	close(c.cancel)

	// Wait out any callback already in flight.
	rt.run.Lock()
	rt.run.Unlock() //nolint:staticcheck // barrier, not a critical section

	metrics.TimersCanceled.Inc()
	s.log.Debugw("countdown canceled", "room", roomID)
}

// ScheduleDelayed runs action once after delay, serialized with the room's
// other callbacks but independent of any countdown. A cleanup of the room
// discards it.
func (s *Scheduler) ScheduleDelayed(roomID string, delay time.Duration, action func()) {
	s.mu.Lock()
	rt := s.room(roomID)
	id := rt.nextID
	rt.nextID++

	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.rooms[roomID]
		if ok && cur == rt {
			delete(rt.delayed, id)
		} else {
			ok = false
		}
		s.mu.Unlock()
		if !ok {
			return
		}

		rt.run.Lock()
		defer rt.run.Unlock()

		// Re-check after taking the room lock: CleanupRoom may have won.
		s.mu.Lock()
		stillOurs := s.rooms[roomID] == rt
		s.mu.Unlock()
		if !stillOurs {
			return
		}

		s.invoke(roomID, action)
	})
	rt.delayed[id] = timer
	s.mu.Unlock()
}

// CleanupRoom cancels the countdown and all delayed actions of a room and
// releases its scheduling slot.
func (s *Scheduler) CleanupRoom(roomID string) {
	s.mu.Lock()
	rt, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if rt.countdown != nil {
		close(rt.countdown.cancel)
		rt.countdown = nil
	}
	for id, timer := range rt.delayed {
		timer.Stop()
		delete(rt.delayed, id)
	}
	delete(s.rooms, roomID)
	s.mu.Unlock()

	rt.run.Lock()
	rt.run.Unlock() //nolint:staticcheck // barrier, not a critical section

	s.log.Debugw("room timers cleaned up", "room", roomID)
}

// Shutdown cancels everything; used on server stop.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.CleanupRoom(id)
	}
}
