package sampler

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/Dicklesworthstone/procsampler/internal/psutil"
	"github.com/Dicklesworthstone/procsampler/internal/psutil/psutiltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadPercent(t *testing.T) {
	cases := []struct {
		name      string
		prev, cur float64
		hasPrev   bool
		sysPrev   float64
		sysNow    float64
		cpus      int
		want      float64
	}{
		{"first observation", 0, 5, false, 0, 8, 4, 0},
		{"half a core", 1, 2, true, 10, 18, 4, 50},
		{"full core", 3, 5, true, 0, 2, 1, 100},
		{"two cores", 0, 4, true, 100, 108, 4, 200},
		{"rounded", 0, 1, true, 0, 3, 1, 33.3},
		{"zero wall delta", 1, 2, true, 10, 10, 4, 0},
		{"clock went backwards", 1, 2, true, 10, 9, 4, 0},
		{"counter went backwards", 5, 2, true, 0, 8, 4, 0},
		{"idle", 2, 2, true, 0, 8, 4, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ThreadPercent(c.prev, c.cur, c.hasPrev, c.sysPrev, c.sysNow, c.cpus)
			assert.Equal(t, c.want, got)
		})
	}
}

func newSampledTracker(t *testing.T, procs ...*psutiltest.Process) (
	*Tracker, *psutiltest.Clock) {
	clock := &psutiltest.Clock{T: 100}
	tracker, err := NewTracker(regexp.MustCompile("worker"),
		psutiltest.NewEnumerator(procs...), clock, 4)
	require.NoError(t, err)
	require.NoError(t, tracker.Reconcile(context.Background(), nil))
	return tracker, clock
}

func TestSampleProcessDerivesThreadPercent(t *testing.T) {
	ctx := context.Background()
	proc := &psutiltest.Process{
		PID: 100, Name: "worker-1", CPU: 42.5, RSS: 1 << 20, Maps: 17,
		ThreadList: []psutil.ThreadTimes{
			{TID: 100, Name: "main", User: 1.0, System: 0.5},
			{TID: 101, Name: "io", User: 0.2},
		},
	}
	tracker, clock := newSampledTracker(t, proc)
	tp, ok := tracker.Lookup(100)
	require.True(t, ok)

	now := time.Unix(1700000000, 0)

	// Cycle 1: no baseline for the process or its threads.
	clock.Advance(2)
	perf, threads, err := tracker.SampleProcess(ctx, tp, now)
	require.NoError(t, err)
	assert.Equal(t, 0.0, perf.CPUPercent)
	assert.Equal(t, uint64(1<<20), perf.MemoryRSS)
	assert.Equal(t, 17, perf.NumMmaps)
	assert.Equal(t, int32(2), perf.NumThreads)
	assert.Equal(t, int64(1), perf.ID)
	require.Len(t, threads, 2)
	for _, th := range threads {
		assert.Equal(t, 0.0, th.CPUPercent)
		assert.Equal(t, int64(1), th.ID)
		assert.Equal(t, now, th.Time)
	}

	// Cycle 2: main used one more CPU second over two wall seconds.
	clock.Advance(2)
	proc.SetThreadTime(100, "main", 2.0)
	proc.SetThreadTime(102, "late", 0.3)
	perf, threads, err = tracker.SampleProcess(ctx, tp, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 42.5, perf.CPUPercent)
	require.Len(t, threads, 3)
	assert.Equal(t, 50.0, threads[0].CPUPercent)
	assert.Equal(t, "main", threads[0].Name)
	assert.Equal(t, 0.0, threads[1].CPUPercent)
	// New thread: first observation.
	assert.Equal(t, int32(102), threads[2].TID)
	assert.Equal(t, 0.0, threads[2].CPUPercent)
}

func TestSampleProcessWithoutClockAdvance(t *testing.T) {
	ctx := context.Background()
	proc := &psutiltest.Process{PID: 7, Name: "worker",
		ThreadList: []psutil.ThreadTimes{{TID: 7, User: 1}}}
	tracker, _ := newSampledTracker(t, proc)
	tp, _ := tracker.Lookup(7)

	_, _, err := tracker.SampleProcess(ctx, tp, time.Now())
	require.NoError(t, err)

	proc.SetThreadTime(7, "", 3)
	_, threads, err := tracker.SampleProcess(ctx, tp, time.Now())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 0.0, threads[0].CPUPercent)
}

func TestSampleProcessVanishedKeepsHistory(t *testing.T) {
	ctx := context.Background()
	proc := &psutiltest.Process{PID: 9, Name: "worker",
		ThreadList: []psutil.ThreadTimes{{TID: 9, User: 1}}}
	tracker, clock := newSampledTracker(t, proc)
	tp, _ := tracker.Lookup(9)

	clock.Advance(1)
	_, _, err := tracker.SampleProcess(ctx, tp, time.Now())
	require.NoError(t, err)
	lastSys := tp.lastSysTime

	proc.Err = psutil.ErrProcessGone
	clock.Advance(1)
	_, threads, err := tracker.SampleProcess(ctx, tp, time.Now())
	assert.ErrorIs(t, err, psutil.ErrProcessGone)
	assert.True(t, psutil.IsTransient(err))
	assert.Nil(t, threads)
	assert.Equal(t, lastSys, tp.lastSysTime)
	assert.Equal(t, 1.0, tp.threadTimes[9])
}
