package flashsale

import (
	"context"
	"time"
)

const (
	msPerSecond = int64(time.Second / time.Millisecond)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// TimeRemaining splits endsAt-now into days, hours, minutes and seconds.
// It returns nil once the sale has ended.
func TimeRemaining(now, endsAt time.Time) *Remaining {
	total := endsAt.Sub(now).Milliseconds()
	if total <= 0 {
		return nil
	}
	return &Remaining{
		Days:    total / msPerDay,
		Hours:   total % msPerDay / msPerHour,
		Minutes: total % msPerHour / msPerMinute,
		Seconds: total % msPerMinute / msPerSecond,
		TotalMs: total,
	}
}

// Watch sends the remaining time right away and then on every tick. The
// channel is closed when the sale ends or ctx is done.
func Watch(ctx context.Context, endsAt time.Time, every time.Duration) <-chan Remaining {
	return watch(ctx, endsAt, every, time.Now)
}

func watch(ctx context.Context, endsAt time.Time, every time.Duration, now func() time.Time) <-chan Remaining {
	if every <= 0 {
		every = time.Second
	}
	out := make(chan Remaining)

	go func() {
		defer close(out)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			r := TimeRemaining(now(), endsAt)
			if r == nil {
				return
			}
			select {
			case out <- *r:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
