package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_DuePrioritizesServerCheck(t *testing.T) {
	s := newSchedule()
	now := time.Now()

	// mod check comes due first chronologically
	s.add(triggerModCheck, time.Minute, now.Add(-2*time.Second))
	s.add(triggerServerCheck, time.Hour, now.Add(-1*time.Second))

	kinds := s.due(now)
	require.Equal(t, []int{triggerServerCheck, triggerModCheck}, kinds)
}

func TestSchedule_DueReschedulesOneIntervalOut(t *testing.T) {
	s := newSchedule()
	now := time.Now()
	s.add(triggerModCheck, time.Minute, now)

	require.Equal(t, []int{triggerModCheck}, s.due(now))

	when, ok := s.next()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), when)

	// nothing due until the new deadline passes
	assert.Empty(t, s.due(now.Add(30*time.Second)))
	assert.Equal(t, []int{triggerModCheck}, s.due(now.Add(61*time.Second)))
}

func TestSchedule_DueTerminatesOnZeroInterval(t *testing.T) {
	s := newSchedule()
	now := time.Now()
	s.add(triggerModCheck, 0, now)

	// a zero-interval trigger reschedules to "now", but one call still
	// reports it exactly once and returns
	assert.Equal(t, []int{triggerModCheck}, s.due(now))
	assert.Equal(t, []int{triggerModCheck}, s.due(now))
}

func TestSchedule_AddReplacesPendingDeadline(t *testing.T) {
	s := newSchedule()
	now := time.Now()
	s.add(triggerServerCheck, time.Hour, now.Add(time.Hour))
	s.add(triggerServerCheck, time.Hour, now)

	assert.Equal(t, []int{triggerServerCheck}, s.due(now))
}

func TestSchedule_EmptyHasNoNext(t *testing.T) {
	s := newSchedule()
	_, ok := s.next()
	assert.False(t, ok)
	assert.Empty(t, s.due(time.Now()))
}
