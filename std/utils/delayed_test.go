package utils_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshworks/meshd/std/utils"
	"github.com/stretchr/testify/require"
)

func TestDelayedWorkFires(t *testing.T) {
	fired := atomic.Int32{}
	work := utils.NewDelayedWork(func() { fired.Add(1) })

	_, armed := work.Remaining()
	require.False(t, armed)

	work.Submit(20 * time.Millisecond)
	remaining, armed := work.Remaining()
	require.True(t, armed)
	require.LessOrEqual(t, remaining, 20*time.Millisecond)

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
	_, armed = work.Remaining()
	require.False(t, armed)

	// fires once per arming
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestDelayedWorkRearm(t *testing.T) {
	fired := atomic.Int32{}
	work := utils.NewDelayedWork(func() { fired.Add(1) })

	work.Submit(time.Hour)
	work.Submit(20 * time.Millisecond)

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestDelayedWorkCancel(t *testing.T) {
	fired := atomic.Int32{}
	work := utils.NewDelayedWork(func() { fired.Add(1) })

	work.Submit(20 * time.Millisecond)
	work.Cancel()
	_, armed := work.Remaining()
	require.False(t, armed)

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())

	// cancel does not poison later submits
	work.Submit(10 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}
