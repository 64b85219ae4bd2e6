// Package psutil is the boundary between the sampler and the operating
// system. Everything the sampler needs from the host goes through the
// small interfaces declared here so that tests can substitute fakes; the
// production implementations delegate to gopsutil.
package psutil

import "context"

// CPUTimes are cumulative host CPU seconds per category.
type CPUTimes struct {
	User      float64
	System    float64
	Idle      float64
	Nice      float64
	Iowait    float64
	Irq       float64
	Softirq   float64
	Steal     float64
	HasIowait bool
}

// Total is the sum of all categories.
func (t CPUTimes) Total() float64 {
	return t.User + t.System + t.Idle + t.Nice + t.Iowait +
		t.Irq + t.Softirq + t.Steal
}

// Memory is a virtual memory reading in bytes.
type Memory struct {
	Total     uint64
	Available uint64
	Used      uint64
}

// Host reads host wide counters.
type Host interface {
	CPUTimes(ctx context.Context) (CPUTimes, error)
	CPUCount(ctx context.Context) (int, error)
	Memory(ctx context.Context) (Memory, error)
}

// Entry is one row of a process listing. Handle stays valid for as long
// as the caller keeps it; percentages read through it are relative to
// the previous read on the same handle.
type Entry struct {
	PID        int32
	PPID       int32
	Name       string
	Cmdline    []string
	CreateTime int64 // milliseconds since the epoch
	Handle     Handle
}

// Enumerator lists every process visible on the host, ordered by pid.
type Enumerator interface {
	Processes(ctx context.Context) ([]Entry, error)
}

// ThreadTimes is the cumulative CPU time of one thread in seconds.
type ThreadTimes struct {
	TID    int32
	Name   string
	User   float64
	System float64
}

// Handle is a persistent reference to one OS process.
type Handle interface {
	// CPUPercent is the process CPU usage since the previous call on
	// this handle, where 100 is one saturated logical CPU. The first
	// call returns 0.
	CPUPercent(ctx context.Context) (float64, error)
	MemoryRSS(ctx context.Context) (uint64, error)
	NumThreads(ctx context.Context) (int32, error)
	NumMaps(ctx context.Context) (int, error)
	Threads(ctx context.Context) ([]ThreadTimes, error)
}

// Clock returns seconds on a monotonic time base.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }
