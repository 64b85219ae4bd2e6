package model

import "time"

// ProcessView pairs a performance sample with what a live view needs.
type ProcessView struct {
	Sample    PerformanceSample
	Name      string
	ParentID  int64
	TopThread *ThreadSample // busiest thread this cycle, nil without threads
}

// Cycle summarizes one completed poll for observers.
type Cycle struct {
	Seq       int
	Started   time.Time
	Duration  time.Duration
	System    SystemSnapshot
	Processes []ProcessView
	New       int
	Skipped   int
}

// Zero returns an empty cycle for initialization.
func Zero() Cycle { return Cycle{Started: time.Now()} }
