package model

import (
	"time"

	"github.com/Velocidex/ordereddict"
)

// SystemSnapshot is one host wide reading per cycle.
type SystemSnapshot struct {
	Time      time.Time
	CPU       float64 // percent 0-100
	CPUUser   float64
	CPUSystem float64
	CPUIdle   float64
	CPUIowait float64
	HasIowait bool // false where the platform has no iowait category
	CPUCount  int
	MemTotal  uint64
	MemAvail  uint64
	MemUsed   uint64
}

var systemColumns = []string{
	"time", "cpu", "cpu_user", "cpu_system", "cpu_idle", "cpu_iowait",
	"cpu_count", "mem_total", "mem_available", "mem_used",
}

func (SystemSnapshot) Columns() []string { return systemColumns }

func (s SystemSnapshot) Row() *ordereddict.Dict {
	var iowait interface{}
	if s.HasIowait {
		iowait = s.CPUIowait
	}
	return ordereddict.NewDict().
		Set("time", s.Time).
		Set("cpu", s.CPU).
		Set("cpu_user", s.CPUUser).
		Set("cpu_system", s.CPUSystem).
		Set("cpu_idle", s.CPUIdle).
		Set("cpu_iowait", iowait).
		Set("cpu_count", s.CPUCount).
		Set("mem_total", s.MemTotal).
		Set("mem_available", s.MemAvail).
		Set("mem_used", s.MemUsed)
}

// ProcessInfo describes a logical process at the moment it was first
// tracked. ParentID is 0 when the parent was not tracked.
type ProcessInfo struct {
	Time       time.Time
	PID        int32
	PPID       int32
	ID         int64
	ParentID   int64
	Name       string
	Args       []string
	CreateTime time.Time
}

var infoColumns = []string{
	"time", "pid", "parent_pid", "logical_id", "parent_logical_id",
	"name", "args", "create_time",
}

func (ProcessInfo) Columns() []string { return infoColumns }

func (p ProcessInfo) Row() *ordereddict.Dict {
	var parent interface{}
	if p.ParentID > 0 {
		parent = p.ParentID
	}
	args := p.Args
	if args == nil {
		args = []string{}
	}
	return ordereddict.NewDict().
		Set("time", p.Time).
		Set("pid", p.PID).
		Set("parent_pid", p.PPID).
		Set("logical_id", p.ID).
		Set("parent_logical_id", parent).
		Set("name", p.Name).
		Set("args", args).
		Set("create_time", p.CreateTime)
}

// PerformanceSample is the per-cycle reading for one tracked process.
type PerformanceSample struct {
	Time       time.Time
	PID        int32
	ID         int64
	CPUPercent float64
	MemoryRSS  uint64
	NumMmaps   int
	NumThreads int32
}

var processColumns = []string{
	"time", "pid", "logical_id", "cpu_percent", "memory_rss",
	"num_mmaps", "num_threads",
}

func (PerformanceSample) Columns() []string { return processColumns }

func (p PerformanceSample) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("time", p.Time).
		Set("pid", p.PID).
		Set("logical_id", p.ID).
		Set("cpu_percent", p.CPUPercent).
		Set("memory_rss", p.MemoryRSS).
		Set("num_mmaps", p.NumMmaps).
		Set("num_threads", p.NumThreads)
}

// ThreadSample is the per-cycle reading for one live thread.
type ThreadSample struct {
	Time       time.Time
	PID        int32
	ID         int64
	TID        int32
	Name       string
	CPUPercent float64
}

var threadColumns = []string{
	"time", "pid", "logical_id", "tid", "name", "cpu_percent",
}

func (ThreadSample) Columns() []string { return threadColumns }

func (t ThreadSample) Row() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("time", t.Time).
		Set("pid", t.PID).
		Set("logical_id", t.ID).
		Set("tid", t.TID).
		Set("name", t.Name).
		Set("cpu_percent", t.CPUPercent)
}
