//go:build !linux

package psutil

func threadName(pid, tid int32) string { return "" }
