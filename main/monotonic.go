/*
	Copyright (c) 2026 bathyx contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	monotonic.go: Monotonic clock built on time.Ticker - necessary because the
	RPi inside the electronics tube has no battery backed RTC, and NTP
	corrections step the wall clock mid dive.
*/

package main

import (
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Timer (since start).

type monotonic struct {
	Milliseconds uint64
	Time         time.Time
	ticker       *time.Ticker
}

func (m *monotonic) Watcher() {
	for {
		<-m.ticker.C
		m.Milliseconds += 10
		m.Time = m.Time.Add(10 * time.Millisecond)
	}
}

func (m *monotonic) Since(t time.Time) time.Duration {
	return m.Time.Sub(t)
}

// UptimeMillis is the published uptime counter.
func (m *monotonic) UptimeMillis() int64 {
	return int64(m.Milliseconds)
}

func (m *monotonic) HumanizeTime(t time.Time) string {
	return humanize.RelTime(t, m.Time, "ago", "from now")
}

func NewMonotonic() *monotonic {
	t := &monotonic{Milliseconds: 0, Time: time.Time{}, ticker: time.NewTicker(10 * time.Millisecond)}
	go t.Watcher()
	return t
}

var bathyxClock *monotonic
