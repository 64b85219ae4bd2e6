package psutil

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// GopsutilHost reads host counters through gopsutil.
type GopsutilHost struct{}

func (GopsutilHost) CPUTimes(ctx context.Context) (CPUTimes, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, errors.Wrap(err, "cpu times")
	}
	if len(times) == 0 {
		return CPUTimes{}, errors.New("cpu times: no aggregate entry")
	}
	t := times[0]
	return CPUTimes{
		User:    t.User,
		System:  t.System,
		Idle:    t.Idle,
		Nice:    t.Nice,
		Iowait:  t.Iowait,
		Irq:     t.Irq,
		Softirq: t.Softirq,
		Steal:   t.Steal,
		// Only Linux reports an iowait category.
		HasIowait: runtime.GOOS == "linux",
	}, nil
}

func (GopsutilHost) CPUCount(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, errors.Wrap(err, "cpu count")
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return n, nil
}

func (GopsutilHost) Memory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, errors.Wrap(err, "virtual memory")
	}
	return Memory{
		Total:     vm.Total,
		Available: vm.Available,
		Used:      vm.Used,
	}, nil
}
