// Copyright 2019 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package mclock

import (
	"container/heap"
	"sync"
	"time"
)

// Simulated implements a virtual Clock for testing. Only timers registered
// through the Simulated instance are affected; real time keeps flowing for
// anything else. Run advances the clock and fires any timers whose
// deadline has passed, in deadline order.
type Simulated struct {
	mu     sync.RWMutex
	now    AbsTime
	timers simTimerHeap
	cond   *sync.Cond
}

// simTimer is one scheduled event: a channel send (ch non-nil) or a
// callback (do non-nil). index is the heap position, -1 once the timer has
// fired or been stopped.
type simTimer struct {
	s     *Simulated
	at    AbsTime
	index int
	do    func()
	ch    chan AbsTime
}

func (s *Simulated) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
}

// Now returns the current virtual time.
func (s *Simulated) Now() AbsTime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Run moves the clock forward by d and fires any expired timers.
func (s *Simulated) Run(d time.Duration) {
	s.mu.Lock()
	s.init()
	end := s.now.Add(d)
	var fire []*simTimer
	for s.timers.Len() > 0 && s.timers[0].at <= end {
		fire = append(fire, heap.Pop(&s.timers).(*simTimer))
	}
	if end > s.now {
		s.now = end
	}
	s.mu.Unlock()

	for _, t := range fire {
		if t.ch != nil {
			// non-blocking send, like time.Timer; the stamp is the
			// timer's own deadline, not the post-Run clock.
			select {
			case t.ch <- t.at:
			default:
			}
		} else {
			t.do()
		}
	}
}

// ActiveTimers returns the number of timers that have not yet fired or been
// stopped.
func (s *Simulated) ActiveTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timers.Len()
}

// WaitForTimers waits until the clock has at least n scheduled timers.
func (s *Simulated) WaitForTimers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for s.timers.Len() < n {
		s.cond.Wait()
	}
}

// Sleep blocks until d has elapsed on the simulated clock.
func (s *Simulated) Sleep(d time.Duration) {
	<-s.After(d)
}

// After returns a channel that receives the fire time once the simulated
// clock has advanced by d.
func (s *Simulated) After(d time.Duration) <-chan AbsTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan AbsTime, 1)
	s.schedule(d, nil, ch)
	return ch
}

// AfterFunc schedules f to run once the simulated clock has advanced by d.
func (s *Simulated) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule(d, f, nil)
}

// NewTimer creates a resettable, channel-based timer on the simulated clock.
func (s *Simulated) NewTimer(d time.Duration) ChanTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan AbsTime, 1)
	return s.schedule(d, nil, ch)
}

// schedule inserts a timer into the heap; the caller holds s.mu.
func (s *Simulated) schedule(d time.Duration, do func(), ch chan AbsTime) *simTimer {
	s.init()
	t := &simTimer{s: s, at: s.now.Add(d), do: do, ch: ch}
	heap.Push(&s.timers, t)
	s.cond.Broadcast()
	return t
}

// Stop cancels the timer. It returns false if the timer has already fired
// or been stopped.
func (t *simTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.s.timers, t.index)
	return true
}

func (t *simTimer) C() <-chan AbsTime {
	if t.ch == nil {
		panic("mclock: C() on timer created by AfterFunc")
	}
	return t.ch
}

// Reset reschedules the timer, reviving it if it has already fired or been
// stopped.
func (t *simTimer) Reset(d time.Duration) {
	if t.ch == nil {
		panic("mclock: Reset() on timer created by AfterFunc")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.init()
	t.at = t.s.now.Add(d)
	if t.index < 0 {
		heap.Push(&t.s.timers, t)
	} else {
		heap.Fix(&t.s.timers, t.index)
	}
	t.s.cond.Broadcast()
}

type simTimerHeap []*simTimer

func (h simTimerHeap) Len() int           { return len(h) }
func (h simTimerHeap) Less(i, j int) bool { return h[i].at < h[j].at }
func (h simTimerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *simTimerHeap) Push(x interface{}) {
	t := x.(*simTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *simTimerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ Clock = (*Simulated)(nil)
var _ ChanTimer = (*simTimer)(nil)
