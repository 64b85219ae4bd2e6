//go:build linux

package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/procsampler/internal/sink"
)

func readTSV(t *testing.T, path string) [][]string {
	fd, err := os.Open(path)
	require.NoError(t, err)
	defer fd.Close()

	r := csv.NewReader(fd)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

// Samples the test binary itself for two cycles.
func TestRunSamplesSelf(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "capture")
	err := run([]string{
		"-o", dir, "-r", ".*procsampler",
		"--cycles", "2", "--interval", "0.05", "--log-level", "error",
	})
	require.NoError(t, err)

	self := strconv.Itoa(os.Getpid())

	info := readTSV(t, filepath.Join(dir, sink.InfoFile))
	require.GreaterOrEqual(t, len(info), 2)
	assert.Equal(t, "time", info[0][0])
	var selfID string
	for _, row := range info[1:] {
		if row[1] == self {
			selfID = row[3]
		}
	}
	require.NotEmpty(t, selfID, "test process was not tracked")

	var samples int
	for _, row := range readTSV(t, filepath.Join(dir, sink.ProcessFile))[1:] {
		if row[2] == selfID {
			samples++
		}
	}
	assert.Equal(t, 2, samples)

	system := readTSV(t, filepath.Join(dir, sink.SystemFile))
	assert.Len(t, system, 3)

	threads := readTSV(t, filepath.Join(dir, sink.ThreadFile))
	assert.Greater(t, len(threads), 1)

	_, err = os.Stat(filepath.Join(dir, sink.ManifestFile))
	assert.NoError(t, err)
}

func TestRunRejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{"-o", dir, "-r", "("})
	assert.Error(t, err)

	// Nothing is created before the options are valid.
	_, err = os.Stat(filepath.Join(dir, sink.InfoFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRejectsBadLogLevelBeforeTruncating(t *testing.T) {
	dir := t.TempDir()
	previous := filepath.Join(dir, sink.ProcessFile)
	require.NoError(t, os.WriteFile(previous, []byte("earlier capture\n"), 0o644))

	t.Setenv("PROCSAMPLER_LOG_LEVEL", "verbose")
	err := run([]string{"-o", dir, "-r", "worker"})
	assert.Error(t, err)

	data, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "earlier capture\n", string(data))
}
