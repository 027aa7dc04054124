package master

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTimerPeriod is how often the watchdog checks the wall clock.
const DefaultTimerPeriod = time.Second

// Watchdog enforces the wall-clock limit from its own goroutine, on a periodic
// timer, so it fires even if the master loop stalls.
type Watchdog struct {
	// Limit is the maximum run time. Zero expires immediately; a negative
	// limit disables the watchdog.
	Limit  time.Duration
	Period time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Run calls expire once the limit has elapsed since start, then returns. It
// returns early without calling expire when ctx is done.
func (w Watchdog) Run(ctx context.Context, start time.Time, expire func()) {
	if w.Limit < 0 {
		return
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	period := w.Period
	if period <= 0 {
		period = DefaultTimerPeriod
	}

	check := func() bool {
		t := now()
		if t.Sub(start) < w.Limit {
			return false
		}
		logger.Info("Master: Time's up!",
			"time", t.Unix(),
			"starttime", start.Unix(),
			"runtime", w.Limit,
		)
		expire()
		return true
	}

	if check() {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if check() {
				return
			}
		}
	}
}
