package tlsregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olocore/concore/task"
)

func TestRecord_ActiveTaskRoundTrip(t *testing.T) {
	r := NewRecord(KindForeground)
	defer r.Close()

	require.Nil(t, r.ActiveTask())
	tk := task.New("t", task.PriorityNormal, nil, func(bool) *task.Task { return nil })
	prev := r.SetActiveTask(tk)
	require.Nil(t, prev)
	require.Same(t, tk, r.ActiveTask())

	prev = r.SetActiveTask(nil)
	require.Same(t, tk, prev)
	require.Nil(t, r.ActiveTask())
}

func TestHasPendingWakeUp(t *testing.T) {
	a := NewRecord(KindBackground)
	defer a.Close()
	b := NewRecord(KindBackground)
	defer b.Close()

	require.False(t, a.pendingWakeUpForTest())
	a.SetPendingWake(true)
	require.True(t, HasPendingWakeUp())
	a.SetPendingWake(false)
	b.SetPendingWake(true)
	require.True(t, HasPendingWakeUp())
	b.SetPendingWake(false)
	require.False(t, HasPendingWakeUp())
}

func (r *Record) pendingWakeUpForTest() bool {
	return r.pendingWake.Load()
}
