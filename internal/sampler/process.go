package sampler

import (
	"context"
	"math"
	"time"

	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/pkg/errors"
)

// ThreadPercent converts two cumulative thread CPU readings into a
// percentage of one logical CPU. sysPrev and sysNow are monotonic clock
// readings already scaled by cpus. Without a previous reading, or when
// the time basis did not advance, the result is 0.
func ThreadPercent(prevTotal, total float64, hasPrev bool,
	sysPrev, sysNow float64, cpus int) float64 {
	if !hasPrev {
		return 0
	}
	deltaWall := sysNow - sysPrev
	if deltaWall <= 0 || math.IsNaN(deltaWall) {
		return 0
	}
	deltaCPU := total - prevTotal
	if deltaCPU < 0 {
		// Counter went backwards, most likely a reused thread id.
		deltaCPU = 0
	}
	return round1(deltaCPU / deltaWall * 100 * float64(cpus))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SampleProcess reads the current counters of tp and derives per-thread
// CPU usage against the readings kept from the previous cycle. Nothing in
// tp changes unless every read succeeds, so a process that vanishes
// mid-sample keeps its history and produces no partial rows.
func (t *Tracker) SampleProcess(ctx context.Context, tp *TrackedProcess,
	now time.Time) (model.PerformanceSample, []model.ThreadSample, error) {
	h := tp.handle
	if h == nil {
		return model.PerformanceSample{}, nil,
			errors.Errorf("process %d has no handle", tp.PID)
	}

	cpuPct, err := h.CPUPercent(ctx)
	if err != nil {
		return model.PerformanceSample{}, nil, err
	}
	rss, err := h.MemoryRSS(ctx)
	if err != nil {
		return model.PerformanceSample{}, nil, err
	}
	numThreads, err := h.NumThreads(ctx)
	if err != nil {
		return model.PerformanceSample{}, nil, err
	}
	numMaps, err := h.NumMaps(ctx)
	if err != nil {
		return model.PerformanceSample{}, nil, err
	}
	threads, err := h.Threads(ctx)
	if err != nil {
		return model.PerformanceSample{}, nil, err
	}

	perf := model.PerformanceSample{
		Time:       now,
		PID:        tp.PID,
		ID:         tp.ID,
		CPUPercent: cpuPct,
		MemoryRSS:  rss,
		NumMmaps:   numMaps,
		NumThreads: numThreads,
	}

	sysNow := t.sysTime()
	samples := make([]model.ThreadSample, 0, len(threads))
	for _, th := range threads {
		total := th.User + th.System
		prev, ok := tp.threadTimes[th.TID]
		samples = append(samples, model.ThreadSample{
			Time: now,
			PID:  tp.PID,
			ID:   tp.ID,
			TID:  th.TID,
			Name: th.Name,
			CPUPercent: ThreadPercent(prev, total, ok,
				tp.lastSysTime, sysNow, t.cpus),
		})
		tp.threadTimes[th.TID] = total
	}
	tp.lastSysTime = sysNow

	return perf, samples, nil
}
