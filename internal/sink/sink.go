// Package sink writes records as tab separated text, one file per record
// kind. Each row is flushed as soon as it is written so a crash loses at
// most the row in flight.
package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/procsampler/internal/model"
	"github.com/Velocidex/ordereddict"
	"github.com/pkg/errors"
)

const (
	InfoFile    = "info.txt"
	ProcessFile = "proc.txt"
	ThreadFile  = "thread.txt"
	SystemFile  = "system.txt"
)

type stream struct {
	fd      *os.File
	w       *csv.Writer
	columns []string
}

func openStream(path string, columns []string, appendMode bool) (*stream, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	st, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	w := csv.NewWriter(fd)
	w.Comma = '\t'
	s := &stream{fd: fd, w: w, columns: columns}

	// Appending to a file that already has content keeps its header.
	if !appendMode || st.Size() == 0 {
		if err := s.writeRecord(columns); err != nil {
			fd.Close()
			return nil, errors.Wrapf(err, "header %s", path)
		}
	}
	return s, nil
}

func (s *stream) writeRecord(record []string) error {
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *stream) write(row *ordereddict.Dict) error {
	record := make([]string, len(s.columns))
	for i, c := range s.columns {
		v, _ := row.Get(c)
		record[i] = formatCell(v)
	}
	return errors.Wrap(s.writeRecord(record), s.fd.Name())
}

func (s *stream) close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.fd.Close()
		return err
	}
	return s.fd.Close()
}

// Dir is the set of output streams in one directory.
type Dir struct {
	Path string

	info    *stream
	system  *stream
	process *stream
	thread  *stream
}

// Open creates dir if needed and opens all four streams. Without
// appendMode existing files are truncated.
func Open(dir string, appendMode bool) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", dir)
	}

	d := &Dir{Path: dir}
	defs := []struct {
		target  **stream
		name    string
		columns []string
	}{
		{&d.info, InfoFile, model.ProcessInfo{}.Columns()},
		{&d.process, ProcessFile, model.PerformanceSample{}.Columns()},
		{&d.thread, ThreadFile, model.ThreadSample{}.Columns()},
		{&d.system, SystemFile, model.SystemSnapshot{}.Columns()},
	}
	for _, def := range defs {
		s, err := openStream(filepath.Join(dir, def.name), def.columns, appendMode)
		if err != nil {
			d.Close()
			return nil, err
		}
		*def.target = s
	}
	return d, nil
}

func (d *Dir) WriteInfo(p model.ProcessInfo) error { return d.info.write(p.Row()) }

func (d *Dir) WriteSystem(s model.SystemSnapshot) error { return d.system.write(s.Row()) }

func (d *Dir) WriteProcess(p model.PerformanceSample) error { return d.process.write(p.Row()) }

func (d *Dir) WriteThread(t model.ThreadSample) error { return d.thread.write(t.Row()) }

// Close flushes and closes every open stream.
func (d *Dir) Close() error {
	var first error
	for _, s := range []*stream{d.info, d.process, d.thread, d.system} {
		if s == nil {
			continue
		}
		if err := s.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
