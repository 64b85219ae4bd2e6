package sampler

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/Dicklesworthstone/procsampler/internal/psutil"
	"github.com/pkg/errors"
)

var errNoCPUs = errors.New("sampler: logical cpu count must be positive")

// TrackedProcess is everything retained about one logical process
// between cycles. Only the counter fields change after discovery.
type TrackedProcess struct {
	ID         int64
	PID        int32
	PPID       int32
	ParentID   int64 // 0 when the parent was not tracked at discovery
	Name       string
	Args       []string
	CreateTime int64 // milliseconds since the epoch
	Discovered time.Time

	handle      psutil.Handle
	lastSysTime float64
	threadTimes map[int32]float64
}

// Info is the record written once when the process is first tracked.
func (tp *TrackedProcess) Info() model.ProcessInfo {
	return model.ProcessInfo{
		Time:       tp.Discovered,
		PID:        tp.PID,
		PPID:       tp.PPID,
		ID:         tp.ID,
		ParentID:   tp.ParentID,
		Name:       tp.Name,
		Args:       tp.Args,
		CreateTime: time.UnixMilli(tp.CreateTime),
	}
}

// Tracker maps OS pids of matching processes to logical identities.
// It is not safe for concurrent use.
type Tracker struct {
	match *regexp.Regexp
	enum  psutil.Enumerator
	clock psutil.Clock
	cpus  int
	now   func() time.Time

	lastID int64
	byPID  map[int32]*TrackedProcess
	order  []*TrackedProcess
}

// NewTracker builds a tracker. match is applied with prefix semantics:
// a match must start at the beginning of the name or command line.
func NewTracker(match *regexp.Regexp, enum psutil.Enumerator,
	clock psutil.Clock, cpus int) (*Tracker, error) {
	if match == nil {
		return nil, errors.New("sampler: nil pattern")
	}
	if cpus <= 0 {
		return nil, errNoCPUs
	}
	return &Tracker{
		match: match,
		enum:  enum,
		clock: clock,
		cpus:  cpus,
		now:   time.Now,
		byPID: make(map[int32]*TrackedProcess),
	}, nil
}

// SetNow replaces the wall clock used for discovery timestamps.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }

// CPUs is the logical cpu count used to scale the time basis.
func (t *Tracker) CPUs() int { return t.cpus }

// Matches tests the name, then the space joined command line.
func (t *Tracker) Matches(name string, cmdline []string) bool {
	if matchPrefix(t.match, name) {
		return true
	}
	return matchPrefix(t.match, strings.Join(cmdline, " "))
}

func matchPrefix(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// sysTime is the monotonic clock scaled by the logical cpu count.
func (t *Tracker) sysTime() float64 {
	return t.clock.Now() * float64(t.cpus)
}

// Reconcile brings the tracked set in line with the current process
// listing. Departed pids are dropped first, so a parent that exited is
// never resolved. onNew runs for each new identity, in pid order, as
// soon as it is assigned.
func (t *Tracker) Reconcile(ctx context.Context, onNew func(*TrackedProcess) error) error {
	entries, err := t.enum.Processes(ctx)
	if err != nil {
		return errors.Wrap(err, "reconcile")
	}

	var fresh []psutil.Entry
	current := make(map[int32]struct{}, len(t.byPID))
	for _, e := range entries {
		if !t.Matches(e.Name, e.Cmdline) {
			continue
		}
		current[e.PID] = struct{}{}

		tp, ok := t.byPID[e.PID]
		if ok && !reused(tp, e) {
			continue
		}
		if ok {
			// Same pid, different process: the old one is gone.
			delete(t.byPID, e.PID)
		}
		fresh = append(fresh, e)
	}

	for pid := range t.byPID {
		if _, ok := current[pid]; !ok {
			delete(t.byPID, pid)
		}
	}
	t.compact()

	for _, e := range fresh {
		tp := t.track(e)
		if onNew == nil {
			continue
		}
		if err := onNew(tp); err != nil {
			// Forget it so the next poll discovers it again.
			delete(t.byPID, tp.PID)
			t.compact()
			return errors.Wrapf(err, "new process %d", tp.PID)
		}
	}
	return nil
}

// createTimeSlack absorbs the rounding in create times derived from boot
// time and clock ticks, which can move a live process by a second.
const createTimeSlack = 1000

// reused reports whether e is a different process that inherited the pid
// of tp between two polls.
func reused(tp *TrackedProcess, e psutil.Entry) bool {
	if e.CreateTime == 0 || tp.CreateTime == 0 {
		return false
	}
	d := e.CreateTime - tp.CreateTime
	if d < 0 {
		d = -d
	}
	return d > createTimeSlack
}

func (t *Tracker) track(e psutil.Entry) *TrackedProcess {
	t.lastID++
	tp := &TrackedProcess{
		ID:          t.lastID,
		PID:         e.PID,
		PPID:        e.PPID,
		Name:        e.Name,
		Args:        e.Cmdline,
		CreateTime:  e.CreateTime,
		Discovered:  t.now(),
		handle:      e.Handle,
		lastSysTime: t.sysTime(),
		threadTimes: make(map[int32]float64),
	}
	if parent, ok := t.byPID[e.PPID]; ok && e.PPID != e.PID {
		tp.ParentID = parent.ID
	}
	t.byPID[e.PID] = tp
	t.order = append(t.order, tp)
	return tp
}

// compact drops retired entries from the discovery order.
func (t *Tracker) compact() {
	kept := t.order[:0]
	for _, tp := range t.order {
		if cur, ok := t.byPID[tp.PID]; ok && cur == tp {
			kept = append(kept, tp)
		}
	}
	for i := len(kept); i < len(t.order); i++ {
		t.order[i] = nil
	}
	t.order = kept
}

// Tracked returns the live processes in discovery order.
func (t *Tracker) Tracked() []*TrackedProcess {
	result := make([]*TrackedProcess, len(t.order))
	copy(result, t.order)
	return result
}

// Lookup finds the logical process currently holding pid.
func (t *Tracker) Lookup(pid int32) (*TrackedProcess, bool) {
	tp, ok := t.byPID[pid]
	return tp, ok
}

// Len is the number of tracked processes.
func (t *Tracker) Len() int { return len(t.byPID) }
