package psutil

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilEnumerator lists processes through gopsutil.
type GopsutilEnumerator struct{}

// Processes returns every process whose name can still be read. A
// process that exits while it is being listed is left out; a missing
// command line is reported as empty.
func (GopsutilEnumerator) Processes(ctx context.Context) ([]Entry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list processes")
	}

	result := make([]Entry, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		createTime, _ := p.CreateTimeWithContext(ctx)

		result = append(result, Entry{
			PID:        p.Pid,
			PPID:       ppid,
			Name:       name,
			Cmdline:    cmdline,
			CreateTime: createTime,
			Handle:     &gopsutilHandle{proc: p},
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PID < result[j].PID
	})
	return result, nil
}

// gopsutilHandle keeps the *process.Process alive so that PercentWithContext
// measures relative to the previous call.
type gopsutilHandle struct {
	proc *process.Process
}

func (h *gopsutilHandle) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := h.proc.PercentWithContext(ctx, 0)
	return pct, classify(err, "cpu percent")
}

func (h *gopsutilHandle) MemoryRSS(ctx context.Context) (uint64, error) {
	info, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, classify(err, "memory info")
	}
	return info.RSS, nil
}

func (h *gopsutilHandle) NumThreads(ctx context.Context) (int32, error) {
	n, err := h.proc.NumThreadsWithContext(ctx)
	return n, classify(err, "num threads")
}

func (h *gopsutilHandle) NumMaps(ctx context.Context) (int, error) {
	maps, err := h.proc.MemoryMapsWithContext(ctx, false)
	if err != nil {
		return 0, classify(err, "memory maps")
	}
	if maps == nil {
		return 0, nil
	}
	return len(*maps), nil
}

func (h *gopsutilHandle) Threads(ctx context.Context) ([]ThreadTimes, error) {
	threads, err := h.proc.ThreadsWithContext(ctx)
	if err != nil {
		return nil, classify(err, "threads")
	}

	result := make([]ThreadTimes, 0, len(threads))
	for tid, times := range threads {
		if times == nil {
			continue
		}
		result = append(result, ThreadTimes{
			TID:    tid,
			Name:   threadName(h.proc.Pid, tid),
			User:   times.User,
			System: times.System,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TID < result[j].TID
	})
	return result, nil
}
