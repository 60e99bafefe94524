package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRoller struct {
	calls atomic.Int32
}

func (r *countingRoller) Rollover() bool {
	r.calls.Add(1)
	return true
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New("every midnight", &countingRoller{})
	assert.Error(t, err)

	_, err = New("0 0 * *", &countingRoller{})
	assert.Error(t, err)
}

func TestNew_DefaultSpec(t *testing.T) {
	s, err := New("", &countingRoller{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, s.Spec())
}

func TestNextRun(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 59, 30, 0, time.UTC)
	s, err := New(DefaultSchedule, &countingRoller{},
		WithLocation(time.UTC),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC), s.NextRun())

	now = time.Date(2025, 3, 2, 0, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC), s.NextRun())
}

func TestRunNow(t *testing.T) {
	roller := &countingRoller{}
	s, err := New(DefaultSchedule, roller)
	require.NoError(t, err)

	assert.ErrorIs(t, s.RunNow(), ErrNotStarted)

	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.RunNow())
	require.Eventually(t, func() bool {
		return roller.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.LastRun().IsZero())
}

func TestStartStopIdempotent(t *testing.T) {
	s, err := New(DefaultSchedule, &countingRoller{})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
