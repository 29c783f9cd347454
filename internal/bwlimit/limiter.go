// Package bwlimit implements the token-bucket bandwidth limiter
// described in spec.md §4.15: debt accumulates per write and is paid
// down against wall-clock elapsed time, mirroring upstream rsync's
// --bwlimit pacing rather than a generic leaky-bucket.
package bwlimit

import "time"

const (
	microsPerSecond = 1_000_000

	// minWriteMax is upstream's floor on the largest chunk let through
	// between pacing checks, regardless of how slow the configured rate is.
	minWriteMax = 512

	// minimumSleepMicros is the debt threshold below which register
	// does not bother sleeping at all, since a sub-millisecond pause
	// buys negligible pacing accuracy and mostly adds syscall overhead.
	minimumSleepMicros = 1000
)

func calculateWriteMax(rateBytesPerSec, burstBytes uint64) int {
	kib := rateBytesPerSec / 1024
	if kib == 0 {
		kib = 1
	}
	writeMax := kib * 128
	if writeMax < minWriteMax {
		writeMax = minWriteMax
	}
	if burstBytes > 0 {
		writeMax = burstBytes
		if writeMax < minWriteMax {
			writeMax = minWriteMax
		}
	}
	if writeMax > 1<<62 {
		writeMax = 1 << 62
	}
	return int(writeMax)
}

// Reservation reports how long register asked the pacing hook to
// sleep and how long the wait actually took, mirroring the
// `golang.org/x/time/rate.Reservation` shape.
type Reservation struct {
	requested time.Duration
	actual    time.Duration
}

// Delay returns the duration register requested the caller sleep for.
func (r Reservation) Delay() time.Duration { return r.requested }

// Actual returns the measured wall-clock time register spent asleep.
func (r Reservation) Actual() time.Duration { return r.actual }

// Limiter paces writes to a configured byte-per-second rate using
// upstream rsync's debt-carry algorithm: each call to Register folds
// newly written bytes into an accumulated debt, pays the debt down by
// however much time has elapsed since the previous call, and sleeps
// when the remaining debt exceeds a minimum threshold.
type Limiter struct {
	rateBytesPerSec uint64
	burstBytes      uint64
	writeMax        int

	totalWritten       uint64
	lastInstant        time.Time
	haveLastInstant    bool
	simulatedElapsedUs uint64

	now   func() time.Time
	sleep func(time.Duration)
}

// New constructs a Limiter with no burst cap.
func New(rateBytesPerSec uint64) *Limiter {
	return NewWithBurst(rateBytesPerSec, 0)
}

// NewWithBurst constructs a Limiter with an explicit burst cap; pass 0
// for no burst cap (the rate alone determines write_max).
func NewWithBurst(rateBytesPerSec, burstBytes uint64) *Limiter {
	l := &Limiter{
		now:   time.Now,
		sleep: time.Sleep,
	}
	l.UpdateConfiguration(rateBytesPerSec, burstBytes)
	return l
}

// RateBytesPerSec returns the configured pacing rate.
func (l *Limiter) RateBytesPerSec() uint64 { return l.rateBytesPerSec }

// BurstBytes returns the configured burst cap, or 0 if unset.
func (l *Limiter) BurstBytes() uint64 { return l.burstBytes }

// WriteMaxBytes returns the largest chunk the limiter recommends
// writing before the next Register call.
func (l *Limiter) WriteMaxBytes() int { return l.writeMax }

// RecommendedReadSize clamps bufferLen to WriteMaxBytes.
func (l *Limiter) RecommendedReadSize(bufferLen int) int {
	if l.writeMax <= 0 {
		return bufferLen
	}
	if bufferLen > l.writeMax {
		return l.writeMax
	}
	return bufferLen
}

// UpdateConfiguration changes the rate and burst cap and resets all
// pacing accumulators, matching upstream's behavior where a
// mid-transfer limit change restarts pacing from a clean slate.
func (l *Limiter) UpdateConfiguration(rateBytesPerSec, burstBytes uint64) {
	if rateBytesPerSec == 0 {
		rateBytesPerSec = 1
	}
	l.rateBytesPerSec = rateBytesPerSec
	l.burstBytes = burstBytes
	l.writeMax = calculateWriteMax(rateBytesPerSec, burstBytes)
	l.Reset()
}

// Reset clears accumulated debt and timing state while keeping the
// current rate and burst configuration.
func (l *Limiter) Reset() {
	l.totalWritten = 0
	l.haveLastInstant = false
	l.simulatedElapsedUs = 0
}

func (l *Limiter) clampDebtToBurst() {
	if l.burstBytes > 0 && l.totalWritten > l.burstBytes {
		l.totalWritten = l.burstBytes
	}
}

// Register records that n bytes were just written and sleeps (via the
// pacing hook) long enough to keep average throughput near the
// configured rate. It returns the requested and actual sleep duration.
func (l *Limiter) Register(n int) Reservation {
	if n <= 0 {
		return Reservation{}
	}

	l.totalWritten += uint64(n)
	l.clampDebtToBurst()

	start := l.now()
	rate := l.rateBytesPerSec

	elapsedUs := l.simulatedElapsedUs
	if l.haveLastInstant {
		measured := uint64(start.Sub(l.lastInstant) / time.Microsecond)
		elapsedUs += measured
	}
	l.simulatedElapsedUs = 0

	if elapsedUs > 0 {
		allowed := elapsedUs * rate / microsPerSecond
		if allowed >= l.totalWritten {
			l.totalWritten = 0
		} else {
			l.totalWritten -= allowed
		}
	}
	l.clampDebtToBurst()

	sleepUs := l.totalWritten * microsPerSecond / rate
	if sleepUs < minimumSleepMicros {
		l.lastInstant = start
		l.haveLastInstant = true
		return Reservation{}
	}

	requested := time.Duration(sleepUs) * time.Microsecond
	l.sleep(requested)

	end := l.now()
	actualUs := uint64(end.Sub(start) / time.Microsecond)
	if sleepUs > actualUs {
		l.simulatedElapsedUs = sleepUs - actualUs
	}
	remainingUs := uint64(0)
	if sleepUs > actualUs {
		remainingUs = sleepUs - actualUs
	}
	leftover := remainingUs * rate / microsPerSecond

	l.totalWritten = leftover
	l.clampDebtToBurst()
	l.lastInstant = end
	l.haveLastInstant = true

	return Reservation{requested: requested, actual: end.Sub(start)}
}
