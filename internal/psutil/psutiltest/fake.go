// Package psutiltest provides in-memory implementations of the psutil
// interfaces for tests.
package psutiltest

import (
	"context"
	"sort"

	"github.com/Dicklesworthstone/procsampler/internal/psutil"
)

// Clock is a manually advanced monotonic clock.
type Clock struct {
	T float64
}

func (c *Clock) Now() float64 { return c.T }

func (c *Clock) Advance(seconds float64) { c.T += seconds }

// Host replays CPU time readings; the last one repeats once exhausted.
type Host struct {
	Times []psutil.CPUTimes
	Count int
	Mem   psutil.Memory
	Err   error

	next int
}

func (h *Host) CPUTimes(ctx context.Context) (psutil.CPUTimes, error) {
	if h.Err != nil {
		return psutil.CPUTimes{}, h.Err
	}
	if len(h.Times) == 0 {
		return psutil.CPUTimes{}, nil
	}
	i := h.next
	if i >= len(h.Times) {
		i = len(h.Times) - 1
	} else {
		h.next++
	}
	return h.Times[i], nil
}

func (h *Host) CPUCount(ctx context.Context) (int, error) {
	if h.Err != nil {
		return 0, h.Err
	}
	return h.Count, nil
}

func (h *Host) Memory(ctx context.Context) (psutil.Memory, error) {
	if h.Err != nil {
		return psutil.Memory{}, h.Err
	}
	return h.Mem, nil
}

// Process is a fake OS process and its handle. Err, when set, is
// returned from every handle read.
type Process struct {
	PID        int32
	PPID       int32
	Name       string
	Cmdline    []string
	CreateTime int64

	CPU        float64
	RSS        uint64
	Maps       int
	ThreadList []psutil.ThreadTimes
	Err        error

	// Reads counts CPUPercent calls on this handle.
	Reads int
}

func (p *Process) CPUPercent(ctx context.Context) (float64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	p.Reads++
	if p.Reads == 1 {
		return 0, nil
	}
	return p.CPU, nil
}

func (p *Process) MemoryRSS(ctx context.Context) (uint64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.RSS, nil
}

func (p *Process) NumThreads(ctx context.Context) (int32, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return int32(len(p.ThreadList)), nil
}

func (p *Process) NumMaps(ctx context.Context) (int, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Maps, nil
}

func (p *Process) Threads(ctx context.Context) ([]psutil.ThreadTimes, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	result := make([]psutil.ThreadTimes, len(p.ThreadList))
	copy(result, p.ThreadList)
	return result, nil
}

// SetThreadTime overwrites the cumulative user time of tid, adding the
// thread if needed.
func (p *Process) SetThreadTime(tid int32, name string, user float64) {
	for i := range p.ThreadList {
		if p.ThreadList[i].TID == tid {
			p.ThreadList[i].User = user
			return
		}
	}
	p.ThreadList = append(p.ThreadList, psutil.ThreadTimes{
		TID: tid, Name: name, User: user,
	})
}

// Enumerator lists a mutable set of fake processes.
type Enumerator struct {
	Procs map[int32]*Process
	Err   error
}

func NewEnumerator(procs ...*Process) *Enumerator {
	e := &Enumerator{Procs: make(map[int32]*Process)}
	for _, p := range procs {
		e.Add(p)
	}
	return e
}

func (e *Enumerator) Add(p *Process) { e.Procs[p.PID] = p }

func (e *Enumerator) Remove(pid int32) { delete(e.Procs, pid) }

func (e *Enumerator) Processes(ctx context.Context) ([]psutil.Entry, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	result := make([]psutil.Entry, 0, len(e.Procs))
	for _, p := range e.Procs {
		result = append(result, psutil.Entry{
			PID:        p.PID,
			PPID:       p.PPID,
			Name:       p.Name,
			Cmdline:    p.Cmdline,
			CreateTime: p.CreateTime,
			Handle:     p,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PID < result[j].PID
	})
	return result, nil
}
