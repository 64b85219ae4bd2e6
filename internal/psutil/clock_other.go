//go:build !linux

package psutil

// MonotonicClock measures seconds since package initialisation.
type MonotonicClock struct{}

func (MonotonicClock) Now() float64 { return fallbackClock() }
