package bwlimit

import (
	"testing"
	"time"
)

func TestCalculateWriteMax(t *testing.T) {
	cases := []struct {
		name  string
		rate  uint64
		burst uint64
		want  int
	}{
		{"small limit uses minimum", 100, 0, minWriteMax},
		{"1kb limit", 1024, 0, minWriteMax},
		{"large limit", 1024 * 100, 0, 12800},
		{"burst overrides", 1024 * 100, 8192, 8192},
		{"small burst uses minimum", 1024 * 100, 100, minWriteMax},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := calculateWriteMax(c.rate, c.burst); got != c.want {
				t.Errorf("calculateWriteMax(%d, %d) = %d, want %d", c.rate, c.burst, got, c.want)
			}
		})
	}
}

func TestNewStoresConfiguration(t *testing.T) {
	l := New(10000)
	if l.RateBytesPerSec() != 10000 {
		t.Errorf("RateBytesPerSec() = %d, want 10000", l.RateBytesPerSec())
	}
	if l.BurstBytes() != 0 {
		t.Errorf("BurstBytes() = %d, want 0", l.BurstBytes())
	}
}

func TestWriteMaxBytes(t *testing.T) {
	l := New(1024 * 100)
	if got := l.WriteMaxBytes(); got != 12800 {
		t.Errorf("WriteMaxBytes() = %d, want 12800", got)
	}
}

func TestRecommendedReadSize(t *testing.T) {
	l := New(1024 * 100)
	if got := l.RecommendedReadSize(100000); got != 12800 {
		t.Errorf("RecommendedReadSize(100000) = %d, want 12800", got)
	}
	if got := l.RecommendedReadSize(100); got != 100 {
		t.Errorf("RecommendedReadSize(100) = %d, want 100", got)
	}
	if got := l.RecommendedReadSize(0); got != 0 {
		t.Errorf("RecommendedReadSize(0) = %d, want 0", got)
	}
}

func TestUpdateConfigurationResetsDebt(t *testing.T) {
	l := New(10000)
	l.totalWritten = 5000
	l.UpdateConfiguration(20000, 0)
	if l.totalWritten != 0 {
		t.Errorf("totalWritten after update = %d, want 0", l.totalWritten)
	}
	if l.RateBytesPerSec() != 20000 {
		t.Errorf("RateBytesPerSec() = %d, want 20000", l.RateBytesPerSec())
	}
}

func TestResetClearsDebtKeepsConfiguration(t *testing.T) {
	l := NewWithBurst(10000, 5000)
	l.totalWritten = 3000
	l.Reset()
	if l.totalWritten != 0 {
		t.Errorf("totalWritten after Reset = %d, want 0", l.totalWritten)
	}
	if l.RateBytesPerSec() != 10000 || l.BurstBytes() != 5000 {
		t.Errorf("Reset changed configuration: rate=%d burst=%d", l.RateBytesPerSec(), l.BurstBytes())
	}
}

func TestRegisterZeroBytesIsNoop(t *testing.T) {
	l := New(10000)
	r := l.Register(0)
	if r.Delay() != 0 {
		t.Errorf("Register(0).Delay() = %v, want 0", r.Delay())
	}
	if l.totalWritten != 0 {
		t.Errorf("totalWritten = %d, want 0", l.totalWritten)
	}
}

// fakeClock lets register's elapsed-time math be driven deterministically.
type fakeClock struct {
	t       time.Time
	sleeps  []time.Duration
}

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) sleep(d time.Duration) {
	f.sleeps = append(f.sleeps, d)
	f.t = f.t.Add(d)
}

func TestRegisterWithBurstClampsDebt(t *testing.T) {
	l := NewWithBurst(100, 1000) // very slow rate, small burst
	fc := &fakeClock{t: time.Unix(0, 0)}
	l.now = fc.now
	l.sleep = fc.sleep

	l.Register(5000) // write far more than burst
	if l.totalWritten > 1000 {
		t.Errorf("totalWritten = %d, want <= 1000 (burst cap)", l.totalWritten)
	}
}

func TestRegisterSleepsProportionallyToDebt(t *testing.T) {
	l := New(1_000_000) // 1 MB/s
	fc := &fakeClock{t: time.Unix(0, 0)}
	l.now = fc.now
	l.sleep = fc.sleep

	// First call: no elapsed time to pay down debt against, so the
	// full write becomes sleep debt.
	r := l.Register(1_000_000) // 1 second's worth
	if r.Delay() <= 0 {
		t.Fatalf("expected a nonzero sleep for a full second of debt, got %v", r.Delay())
	}
	if len(fc.sleeps) != 1 {
		t.Fatalf("expected exactly one sleep call, got %d", len(fc.sleeps))
	}
}

func TestRegisterSmallAmountAtHighRateDoesNotSleep(t *testing.T) {
	l := New(1_000_000_000) // 1 GB/s
	fc := &fakeClock{t: time.Unix(0, 0)}
	l.now = fc.now
	l.sleep = fc.sleep

	r := l.Register(100)
	if r.Delay() != 0 {
		t.Errorf("Register(100) at 1GB/s Delay() = %v, want 0", r.Delay())
	}
	if len(fc.sleeps) != 0 {
		t.Errorf("expected no sleep calls, got %d", len(fc.sleeps))
	}
}

func TestRegisterPaysDownDebtOverElapsedTime(t *testing.T) {
	l := New(1_000_000) // 1 MB/s
	fc := &fakeClock{t: time.Unix(0, 0)}
	l.now = fc.now
	l.sleep = fc.sleep

	l.Register(1) // establishes lastInstant, no meaningful debt
	fc.t = fc.t.Add(2 * time.Second)
	// During the 2 elapsed seconds at 1MB/s, 2,000,000 bytes of
	// allowance accrued, comfortably paying down a small write.
	r := l.Register(10)
	if r.Delay() != 0 {
		t.Errorf("Register after a long idle period should not sleep, got delay %v", r.Delay())
	}
}
