package flashsale

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	r := TimeRemaining(now, now.Add(90061000*time.Millisecond))
	require.NotNil(t, r)
	require.Equal(t, Remaining{Days: 1, Hours: 1, Minutes: 1, Seconds: 1, TotalMs: 90061000}, *r)

	r = TimeRemaining(now, now.Add(59*time.Second+999*time.Millisecond))
	require.NotNil(t, r)
	require.Equal(t, Remaining{Seconds: 59, TotalMs: 59999}, *r)

	require.Nil(t, TimeRemaining(now, now))
	require.Nil(t, TimeRemaining(now, now.Add(-time.Millisecond)))
	require.Nil(t, TimeRemaining(now, now.Add(-48*time.Hour)))
}

func TestWatchClosesWhenSaleEnds(t *testing.T) {
	start := time.Now()
	feed := Watch(context.Background(), start.Add(60*time.Millisecond), 10*time.Millisecond)

	var ticks int
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-feed:
			if !ok {
				require.GreaterOrEqual(t, ticks, 1)
				return
			}
			require.Positive(t, r.TotalMs)
			ticks++
		case <-timeout:
			t.Fatal("watch did not close after the sale ended")
		}
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := Watch(ctx, time.Now().Add(time.Hour), 5*time.Millisecond)

	first, ok := <-feed
	require.True(t, ok)
	require.Zero(t, first.Days)
	cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-feed:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("watch did not close after cancel")
		}
	}
}

func TestWatchEndedSaleClosesImmediately(t *testing.T) {
	feed := Watch(context.Background(), time.Now().Add(-time.Second), time.Second)
	_, ok := <-feed
	require.False(t, ok)
}
