package sampler

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/Dicklesworthstone/procsampler/internal/psutil/psutiltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TrackerTestSuite struct {
	suite.Suite
	ctx     context.Context
	enum    *psutiltest.Enumerator
	clock   *psutiltest.Clock
	tracker *Tracker
	found   []*TrackedProcess
}

func (self *TrackerTestSuite) SetupTest() {
	self.ctx = context.Background()
	self.enum = psutiltest.NewEnumerator()
	self.clock = &psutiltest.Clock{T: 100}
	self.found = nil

	tracker, err := NewTracker(regexp.MustCompile("worker"), self.enum, self.clock, 4)
	require.NoError(self.T(), err)
	self.tracker = tracker
}

func (self *TrackerTestSuite) reconcile() []*TrackedProcess {
	self.found = nil
	err := self.tracker.Reconcile(self.ctx, func(tp *TrackedProcess) error {
		self.found = append(self.found, tp)
		return nil
	})
	require.NoError(self.T(), err)
	return self.found
}

func ids(tps []*TrackedProcess) []int64 {
	result := make([]int64, 0, len(tps))
	for _, tp := range tps {
		result = append(result, tp.ID)
	}
	return result
}

func (self *TrackerTestSuite) TestIdentitiesStartAtOneInPidOrder() {
	self.enum.Add(&psutiltest.Process{PID: 300, Name: "worker-c"})
	self.enum.Add(&psutiltest.Process{PID: 100, Name: "worker-a"})
	self.enum.Add(&psutiltest.Process{PID: 200, Name: "worker-b"})
	self.enum.Add(&psutiltest.Process{PID: 150, Name: "bash"})

	found := self.reconcile()
	assert.Equal(self.T(), []int64{1, 2, 3}, ids(found))
	assert.Equal(self.T(), int32(100), found[0].PID)
	assert.Equal(self.T(), int32(300), found[2].PID)
	assert.Equal(self.T(), 3, self.tracker.Len())

	// A second pass over the same set discovers nothing.
	assert.Empty(self.T(), self.reconcile())
	assert.Equal(self.T(), []int64{1, 2, 3}, ids(self.tracker.Tracked()))
}

func (self *TrackerTestSuite) TestDepartedPidIsForgottenAndReusedPidGetsNewIdentity() {
	self.enum.Add(&psutiltest.Process{PID: 100, Name: "worker-1"})
	self.enum.Add(&psutiltest.Process{PID: 101, Name: "worker-2"})
	self.reconcile()

	self.enum.Remove(100)
	assert.Empty(self.T(), self.reconcile())
	_, ok := self.tracker.Lookup(100)
	assert.False(self.T(), ok)
	assert.Equal(self.T(), []int64{2}, ids(self.tracker.Tracked()))

	self.enum.Add(&psutiltest.Process{PID: 100, Name: "worker-1"})
	found := self.reconcile()
	require.Len(self.T(), found, 1)
	assert.Equal(self.T(), int64(3), found[0].ID)
	assert.Equal(self.T(), []int64{2, 3}, ids(self.tracker.Tracked()))
}

func (self *TrackerTestSuite) TestPidReusedBetweenPolls() {
	self.enum.Add(&psutiltest.Process{PID: 100, Name: "worker", CreateTime: 1000})
	self.reconcile()

	// The original exited and an unrelated worker took its pid.
	self.enum.Add(&psutiltest.Process{PID: 100, Name: "worker", CreateTime: 5000})
	found := self.reconcile()
	require.Len(self.T(), found, 1)
	assert.Equal(self.T(), int64(2), found[0].ID)
	assert.Equal(self.T(), 1, self.tracker.Len())
}

func (self *TrackerTestSuite) TestCreateTimeJitterKeepsIdentity() {
	proc := &psutiltest.Process{PID: 100, Name: "worker", CreateTime: 856000}
	self.enum.Add(proc)
	self.reconcile()

	// Boot time rounding moves the reported start by up to a second.
	for _, ct := range []int64{857000, 856000, 855000} {
		proc.CreateTime = ct
		assert.Empty(self.T(), self.reconcile())
		assert.Equal(self.T(), []int64{1}, ids(self.tracker.Tracked()))
	}
}

func (self *TrackerTestSuite) TestParentResolution() {
	// 10 exists but does not match, so its child has no parent identity.
	self.enum.Add(&psutiltest.Process{PID: 10, Name: "init"})
	self.enum.Add(&psutiltest.Process{PID: 20, PPID: 10, Name: "worker-main"})
	self.enum.Add(&psutiltest.Process{PID: 30, PPID: 20, Name: "worker-child"})
	found := self.reconcile()
	require.Len(self.T(), found, 2)
	assert.Equal(self.T(), int64(0), found[0].ParentID)
	assert.Equal(self.T(), found[0].ID, found[1].ParentID)

	// A later child of a tracked parent resolves too.
	self.enum.Add(&psutiltest.Process{PID: 40, PPID: 20, Name: "worker-late"})
	found = self.reconcile()
	require.Len(self.T(), found, 1)
	assert.Equal(self.T(), int64(1), found[0].ParentID)
}

func (self *TrackerTestSuite) TestParentIsNotResolvedLater() {
	// Child sorts before its parent, so the parent is not yet tracked.
	self.enum.Add(&psutiltest.Process{PID: 50, PPID: 60, Name: "worker-child"})
	self.enum.Add(&psutiltest.Process{PID: 60, Name: "worker-parent"})
	self.reconcile()
	self.reconcile()

	child, ok := self.tracker.Lookup(50)
	require.True(self.T(), ok)
	assert.Equal(self.T(), int64(0), child.ParentID)
}

func (self *TrackerTestSuite) TestParentThatDepartedIsNotResolved() {
	self.enum.Add(&psutiltest.Process{PID: 20, Name: "worker-main"})
	self.reconcile()

	self.enum.Remove(20)
	self.enum.Add(&psutiltest.Process{PID: 30, PPID: 20, Name: "worker-orphan"})
	found := self.reconcile()
	require.Len(self.T(), found, 1)
	assert.Equal(self.T(), int64(0), found[0].ParentID)
}

func (self *TrackerTestSuite) TestMatching() {
	self.enum.Add(&psutiltest.Process{PID: 1, Name: "worker", Cmdline: nil})
	self.enum.Add(&psutiltest.Process{PID: 2, Name: "python3",
		Cmdline: []string{"worker.py", "--jobs", "4"}})
	self.enum.Add(&psutiltest.Process{PID: 3, Name: "my-worker"})
	self.enum.Add(&psutiltest.Process{PID: 4, Name: "python3",
		Cmdline: []string{"python3", "worker.py"}})

	found := self.reconcile()
	require.Len(self.T(), found, 2)
	assert.Equal(self.T(), int32(1), found[0].PID)
	assert.Equal(self.T(), int32(2), found[1].PID)
	assert.Equal(self.T(), []string{"worker.py", "--jobs", "4"}, found[1].Args)
}

func (self *TrackerTestSuite) TestInfoRecord() {
	self.enum.Add(&psutiltest.Process{PID: 100, PPID: 1, Name: "worker-1",
		Cmdline: []string{"worker-1", "-v"}, CreateTime: 1700000000500})
	found := self.reconcile()
	require.Len(self.T(), found, 1)

	info := found[0].Info()
	assert.Equal(self.T(), int64(1), info.ID)
	assert.Equal(self.T(), int64(0), info.ParentID)
	assert.Equal(self.T(), int32(1), info.PPID)
	assert.Equal(self.T(), int64(1700000000500), info.CreateTime.UnixMilli())
	assert.Equal(self.T(), 400.0, found[0].lastSysTime)
}

func (self *TrackerTestSuite) TestCallbackErrorStopsReconcile() {
	self.enum.Add(&psutiltest.Process{PID: 1, Name: "worker-1"})
	self.enum.Add(&psutiltest.Process{PID: 2, Name: "worker-2"})

	boom := errors.New("disk full")
	calls := 0
	err := self.tracker.Reconcile(self.ctx, func(tp *TrackedProcess) error {
		calls++
		return boom
	})
	assert.ErrorIs(self.T(), err, boom)
	assert.Equal(self.T(), 1, calls)

	// The failed process is not kept, so the next poll announces it.
	assert.Equal(self.T(), 0, self.tracker.Len())
	_, ok := self.tracker.Lookup(1)
	assert.False(self.T(), ok)

	found := self.reconcile()
	require.Len(self.T(), found, 2)
	assert.Equal(self.T(), int32(1), found[0].PID)
	assert.Equal(self.T(), []int64{2, 3}, ids(found))
}

func (self *TrackerTestSuite) TestEnumerationErrorKeepsState() {
	self.enum.Add(&psutiltest.Process{PID: 1, Name: "worker-1"})
	self.reconcile()

	self.enum.Err = errors.New("proc unavailable")
	err := self.tracker.Reconcile(self.ctx, nil)
	assert.Error(self.T(), err)
	assert.Equal(self.T(), 1, self.tracker.Len())
}

func TestTracker(t *testing.T) {
	suite.Run(t, &TrackerTestSuite{})
}

func TestNewTrackerRejectsBadInput(t *testing.T) {
	enum := psutiltest.NewEnumerator()
	clock := &psutiltest.Clock{}

	_, err := NewTracker(nil, enum, clock, 1)
	assert.Error(t, err)

	_, err = NewTracker(regexp.MustCompile("x"), enum, clock, 0)
	assert.ErrorIs(t, err, errNoCPUs)
}
