// Copyright 2016 The go-ethereum Authors
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

// Package mclock is a wrapper for a monotonic clock source.
package mclock

import (
	"time"
)

// AbsTime represents absolute monotonic time.
type AbsTime time.Duration

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(monotime())
}

// Add returns t + d.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock interface makes it possible to replace the monotonic system clock with
// a simulated clock. The cache's last-used stamps, purge age checks, and the
// request/response surface's scheduling are driven through
// this interface so tests can run the purge/flush timing scenarios
// without real sleeps.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) ChanTimer
	After(time.Duration) <-chan AbsTime
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a cancellable event returned by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer has already
	// expired or been stopped.
	Stop() bool
}

// ChanTimer is a cancellable event that fires on a channel.
type ChanTimer interface {
	Timer
	C() <-chan AbsTime
	Reset(time.Duration)
}

// System implements Clock using the system clock.
type System struct{}

// Now returns the current monotonic time.
func (System) Now() AbsTime {
	return AbsTime(monotime())
}

// Sleep blocks for the given duration.
func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// After returns a channel that receives the current time after d has elapsed.
func (System) After(d time.Duration) <-chan AbsTime {
	ch := make(chan AbsTime, 1)
	time.AfterFunc(d, func() {
		select {
		case ch <- Now():
		default:
		}
	})
	return ch
}

// AfterFunc runs f in its own goroutine after d has elapsed.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return (*systemTimer)(time.AfterFunc(d, f))
}

// NewTimer creates a timer which can be rescheduled.
func (System) NewTimer(d time.Duration) ChanTimer {
	ch := make(chan AbsTime, 1)
	t := time.AfterFunc(d, func() {
		// non-blocking send, like time.Timer
		select {
		case ch <- Now():
		default:
		}
	})
	return &systemChanTimer{timer: t, ch: ch}
}

type systemTimer time.Timer

func (st *systemTimer) Stop() bool {
	return (*time.Timer)(st).Stop()
}

type systemChanTimer struct {
	timer *time.Timer
	ch    chan AbsTime
}

func (st *systemChanTimer) C() <-chan AbsTime {
	return st.ch
}

func (st *systemChanTimer) Stop() bool {
	return st.timer.Stop()
}

func (st *systemChanTimer) Reset(d time.Duration) {
	st.timer.Reset(d)
}
