package sink

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const ManifestFile = "run.yaml"

// Manifest records how a capture was started.
type Manifest struct {
	RunID    string    `yaml:"run_id"`
	Host     string    `yaml:"host"`
	Pattern  string    `yaml:"pattern"`
	Interval string    `yaml:"interval"`
	Append   bool      `yaml:"append"`
	Started  time.Time `yaml:"started"`
}

func NewManifest(pattern string, interval time.Duration, appendMode bool) Manifest {
	host, _ := os.Hostname()
	return Manifest{
		RunID:    uuid.NewString(),
		Host:     host,
		Pattern:  pattern,
		Interval: interval.String(),
		Append:   appendMode,
		Started:  time.Now().UTC(),
	}
}

// WriteManifest stores m in dir. In append mode it is added as a new
// YAML document after those of earlier runs.
func WriteManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(&m)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}

	path := filepath.Join(dir, ManifestFile)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if m.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer fd.Close()

	if m.Append {
		st, err := fd.Stat()
		if err == nil && st.Size() > 0 {
			data = append([]byte("---\n"), data...)
		}
	}
	_, err = fd.Write(data)
	return errors.Wrapf(err, "write %s", path)
}
