package sampler

import (
	"context"
	"time"

	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/Dicklesworthstone/procsampler/internal/psutil"
)

// SystemReader turns host counters into SystemSnapshots. CPU
// percentages are relative to the previous Read, or to construction for
// the first one.
type SystemReader struct {
	host psutil.Host
	now  func() time.Time

	prev    psutil.CPUTimes
	hasPrev bool
}

func NewSystemReader(ctx context.Context, host psutil.Host, now func() time.Time) *SystemReader {
	if now == nil {
		now = time.Now
	}
	r := &SystemReader{host: host, now: now}
	if times, err := host.CPUTimes(ctx); err == nil {
		r.prev, r.hasPrev = times, true
	}
	return r
}

func (r *SystemReader) Read(ctx context.Context) (model.SystemSnapshot, error) {
	times, err := r.host.CPUTimes(ctx)
	if err != nil {
		return model.SystemSnapshot{}, err
	}
	count, err := r.host.CPUCount(ctx)
	if err != nil {
		return model.SystemSnapshot{}, err
	}
	vm, err := r.host.Memory(ctx)
	if err != nil {
		return model.SystemSnapshot{}, err
	}

	snap := model.SystemSnapshot{
		Time:      r.now(),
		HasIowait: times.HasIowait,
		CPUCount:  count,
		MemTotal:  vm.Total,
		MemAvail:  vm.Available,
		MemUsed:   vm.Used,
	}
	if r.hasPrev {
		fillPercents(&snap, r.prev, times)
	}
	r.prev, r.hasPrev = times, true
	return snap, nil
}

// fillPercents derives utilisation from two cumulative readings. Busy
// time excludes idle and iowait.
func fillPercents(snap *model.SystemSnapshot, prev, cur psutil.CPUTimes) {
	dt := cur.Total() - prev.Total()
	if dt <= 0 {
		return
	}
	share := func(c, p float64) float64 {
		d := c - p
		if d < 0 {
			d = 0
		}
		return round1(100 * d / dt)
	}
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	snap.CPU = round1(clampPercent(100 * (1 - idle/dt)))
	snap.CPUUser = share(cur.User, prev.User)
	snap.CPUSystem = share(cur.System, prev.System)
	snap.CPUIdle = share(cur.Idle, prev.Idle)
	snap.CPUIowait = share(cur.Iowait, prev.Iowait)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
