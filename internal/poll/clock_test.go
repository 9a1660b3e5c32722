package poll

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepFiresOnMockAdvance(t *testing.T) {
	mock := clock.NewMock()
	c := FromClock(mock)

	done := make(chan error, 1)
	go func() { done <- c.Sleep(context.Background(), time.Second) }()

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		select {
		case err := <-done:
			assert.NoError(t, err)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSleepCanceled(t *testing.T) {
	c := FromClock(clock.NewMock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Sleep(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after cancel")
	}
}

func TestSleepNonPositive(t *testing.T) {
	c := FromClock(clock.NewMock())
	assert.NoError(t, c.Sleep(context.Background(), 0))
}

func TestWithDeadlineFollowsClock(t *testing.T) {
	mock := clock.NewMock()
	c := FromClock(mock)

	ctx, cancel := c.WithDeadline(context.Background(), mock.Now().Add(time.Second))
	defer cancel()
	assert.NoError(t, ctx.Err())

	mock.Add(time.Second)
	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire after mock advance")
	}
}
