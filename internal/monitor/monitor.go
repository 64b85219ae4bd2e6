// Package monitor drives the poll loop: snapshot the host, reconcile the
// tracked processes, sample each of them and hand every record to the
// sink, then sleep until the next cycle.
package monitor

import (
	"context"
	"time"

	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/Dicklesworthstone/procsampler/internal/psutil"
	"github.com/Dicklesworthstone/procsampler/internal/sampler"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Sink receives records in the order they are produced.
type Sink interface {
	WriteInfo(model.ProcessInfo) error
	WriteSystem(model.SystemSnapshot) error
	WriteProcess(model.PerformanceSample) error
	WriteThread(model.ThreadSample) error
}

// SystemSource produces one host snapshot per call.
type SystemSource interface {
	Read(ctx context.Context) (model.SystemSnapshot, error)
}

// Options configures a Monitor.
type Options struct {
	System   SystemSource
	Tracker  *sampler.Tracker
	Sink     Sink
	Interval time.Duration

	// Cycles stops Run after this many cycles; 0 means run until the
	// context is cancelled.
	Cycles int

	Logger logrus.FieldLogger
	Now    func() time.Time

	// Observer, when set, receives a summary after every completed cycle.
	Observer func(model.Cycle)
}

// Monitor drives poll cycles and hands every record to its Sink.
type Monitor struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time
	seq  int
}

// New checks opts and fills in the default logger and clock.
func New(opts Options) (*Monitor, error) {
	if opts.System == nil || opts.Tracker == nil || opts.Sink == nil {
		return nil, errors.New("monitor: system source, tracker and sink are required")
	}
	if opts.Interval <= 0 {
		return nil, errors.Errorf("monitor: interval must be positive, got %v", opts.Interval)
	}
	m := &Monitor{opts: opts, log: opts.Logger, now: opts.Now}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	opts.Tracker.SetNow(m.now)
	return m, nil
}

// Cycle performs a single poll. A process that cannot be read is skipped
// for this cycle only; any other error abandons the rest of the cycle.
func (m *Monitor) Cycle(ctx context.Context) (model.Cycle, error) {
	m.seq++
	cycle := model.Cycle{Seq: m.seq, Started: m.now()}

	snap, err := m.opts.System.Read(ctx)
	if err != nil {
		return cycle, errors.Wrap(err, "system snapshot")
	}
	if err := m.opts.Sink.WriteSystem(snap); err != nil {
		return cycle, err
	}
	cycle.System = snap

	tracker := m.opts.Tracker
	err = tracker.Reconcile(ctx, func(tp *sampler.TrackedProcess) error {
		cycle.New++
		m.log.WithFields(logrus.Fields{
			"logical_id":        tp.ID,
			"pid":               tp.PID,
			"parent_logical_id": tp.ParentID,
			"name":              tp.Name,
		}).Info("Tracking process")
		return m.opts.Sink.WriteInfo(tp.Info())
	})
	if err != nil {
		return cycle, err
	}

	for _, tp := range tracker.Tracked() {
		perf, threads, err := tracker.SampleProcess(ctx, tp, m.now())
		if err != nil {
			cycle.Skipped++
			m.skip(tp, err)
			continue
		}

		for _, th := range threads {
			if err := m.opts.Sink.WriteThread(th); err != nil {
				return cycle, err
			}
		}
		if err := m.opts.Sink.WriteProcess(perf); err != nil {
			return cycle, err
		}

		cycle.Processes = append(cycle.Processes, model.ProcessView{
			Sample:    perf,
			Name:      tp.Name,
			ParentID:  tp.ParentID,
			TopThread: busiest(threads),
		})
	}

	trackedProcesses.Set(float64(tracker.Len()))
	cycle.Duration = m.now().Sub(cycle.Started)
	return cycle, nil
}

func (m *Monitor) skip(tp *sampler.TrackedProcess, err error) {
	entry := m.log.WithFields(logrus.Fields{
		"logical_id": tp.ID,
		"pid":        tp.PID,
		"error":      err.Error(),
	})
	if psutil.IsTransient(err) {
		processSkips.WithLabelValues("transient").Inc()
		entry.Debug("Skipping process for this cycle")
		return
	}
	processSkips.WithLabelValues("error").Inc()
	entry.Warn("Skipping process for this cycle")
}

func busiest(threads []model.ThreadSample) *model.ThreadSample {
	var top *model.ThreadSample
	for i := range threads {
		if top == nil || threads[i].CPUPercent > top.CPUPercent {
			top = &threads[i]
		}
	}
	return top
}

// Run polls until ctx is cancelled or the configured number of cycles
// has run. Cancellation is only observed between cycles: a cycle in
// progress always completes its writes. Cycle errors are logged and the
// loop carries on.
func (m *Monitor) Run(ctx context.Context) error {
	for n := 0; ; {
		if ctx.Err() != nil {
			return nil
		}

		m.runCycle(context.WithoutCancel(ctx))
		n++
		if m.opts.Cycles > 0 && n >= m.opts.Cycles {
			return nil
		}

		timer := time.NewTimer(m.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	timer := prometheus.NewTimer(cycleDuration)
	defer timer.ObserveDuration()
	cyclesTotal.Inc()

	cycle, err := m.safeCycle(ctx)
	if err != nil {
		cycleErrors.Inc()
		m.log.WithFields(logrus.Fields{
			"cycle": cycle.Seq,
			"error": err.Error(),
		}).Error("Cycle failed")
		return
	}
	if m.opts.Observer != nil {
		m.opts.Observer(cycle)
	}
}

func (m *Monitor) safeCycle(ctx context.Context) (cycle model.Cycle, err error) {
	defer func() {
		if r := recover(); r != nil {
			cycle = model.Cycle{Seq: m.seq}
			err = errors.Errorf("panic during cycle: %v", r)
		}
	}()
	return m.Cycle(ctx)
}
