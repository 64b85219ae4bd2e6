package psutil

import "time"

var clockBase = time.Now()

// fallbackClock uses the monotonic reading carried by time.Time.
func fallbackClock() float64 {
	return time.Since(clockBase).Seconds()
}
