package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	timer := f.NewTimer(2 * time.Second)

	f.Advance(time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	f.Advance(time.Second)
	select {
	case fired := <-timer.C():
		require.Equal(t, start.Add(2*time.Second), fired)
	default:
		t.Fatal("timer did not fire")
	}

	require.False(t, timer.Stop())
	require.False(t, timer.Reset(time.Second))
	f.BlockUntil(1)
	require.True(t, timer.Stop())
}

func TestFakeZeroDurationFiresImmediately(t *testing.T) {
	t.Parallel()

	f := NewFake(time.Unix(0, 0))
	timer := f.NewTimer(0)

	select {
	case <-timer.C():
	default:
		t.Fatal("zero-duration timer should fire immediately")
	}
}
