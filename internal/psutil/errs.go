package psutil

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrProcessGone indicates the process exited between enumeration
	// and sampling.
	ErrProcessGone = errors.New("psutil: process no longer exists")

	// ErrAccessDenied indicates the process exists but may not be read.
	ErrAccessDenied = errors.New("psutil: access denied")
)

// IsTransient reports whether err only concerns a single process for a
// single cycle: the process vanished or denied access.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrProcessGone),
		errors.Is(err, ErrAccessDenied),
		errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.ESRCH):
		return true
	}
	return false
}

// classify maps raw gopsutil errors onto the package sentinels, keeping
// the original message as context.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ESRCH):
		return errors.Wrapf(ErrProcessGone, "%s: %v", op, err)
	case errors.Is(err, os.ErrPermission):
		return errors.Wrapf(ErrAccessDenied, "%s: %v", op, err)
	}
	return errors.Wrap(err, op)
}
