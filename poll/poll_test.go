package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSatisfiedOnKthCheck(t *testing.T) {
	t.Parallel()

	var checks int
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		checks++
		return checks == 3, nil
	}, Options{Timeout: time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, checks)
}

func TestPollSatisfiedImmediately(t *testing.T) {
	t.Parallel()

	start := time.Now()
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		return true, nil
	}, Options{Timeout: time.Second, Interval: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"a condition true on the first check must not wait an interval")
}

func TestPollTimeout(t *testing.T) {
	t.Parallel()

	var checks int
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		checks++
		return false, nil
	}, Options{Timeout: 50 * time.Millisecond, Interval: 10 * time.Millisecond})

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 50*time.Millisecond, terr.Timeout)
	assert.Greater(t, terr.Elapsed, terr.Timeout)
	assert.Greater(t, checks, 1)
}

func TestPollConditionErrorIsTransient(t *testing.T) {
	t.Parallel()

	// Errors while polling mean "not yet satisfied", never a failed wait.
	var checks int
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		checks++
		if checks < 3 {
			return false, errors.New("element not attached")
		}
		return true, nil
	}, Options{Timeout: time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, checks)
}

func TestPollDeadlineBeatsCondition(t *testing.T) {
	t.Parallel()

	// The deadline is checked before the condition, so with an expired
	// timeout even an always-true condition reports a timeout.
	err := Poll(context.Background(), func(context.Context) (bool, error) {
		return true, nil
	}, Options{Timeout: -1})

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
}

func TestPollContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Poll(ctx, func(context.Context) (bool, error) {
		return false, nil
	}, Options{Timeout: time.Minute, Interval: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}
