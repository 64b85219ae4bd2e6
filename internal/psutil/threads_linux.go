//go:build linux

package psutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func hostProc() string {
	if v := os.Getenv("HOST_PROC"); v != "" {
		return v
	}
	return "/proc"
}

// threadName reads /proc/<pid>/task/<tid>/comm. A thread that has
// already exited gets an empty name.
func threadName(pid, tid int32) string {
	path := filepath.Join(hostProc(),
		strconv.Itoa(int(pid)), "task", strconv.Itoa(int(tid)), "comm")
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
