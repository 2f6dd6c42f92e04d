package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/kuroyamii/playwright-stress-test/internal/config"
)

const (
	lockFileName = ".lock"
	lockRetry    = 100 * time.Millisecond
)

// Writer stores report files for a run under one directory. Concurrent runs
// sharing the directory are serialised with a file lock.
type Writer struct {
	dir   string
	kinds config.OutputConfig
}

func NewWriter(cfg config.OutputConfig) *Writer {
	dir := cfg.Dir
	if dir == "" {
		dir = config.Default().Output.Dir
	}
	return &Writer{dir: dir, kinds: cfg}
}

// Write renders every enabled report kind and returns the written paths.
func (w *Writer) Write(ctx context.Context, r Report) ([]string, error) {
	if !w.kinds.Enabled() {
		return nil, nil
	}
	if r.RunID == "" {
		return nil, fmt.Errorf("report: run id is required")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(w.dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock output dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock output dir: %s is busy", w.dir)
	}
	defer lock.Unlock()

	type render struct {
		enabled bool
		name    string
		write   func(io.Writer) error
	}
	renders := []render{
		{w.kinds.Text, r.RunID + "-report.txt", func(out io.Writer) error { PrintReport(out, r); return nil }},
		{w.kinds.JSON, r.RunID + "-report.json", func(out io.Writer) error { return PrintJSONReport(out, r) }},
		{w.kinds.YAML, r.RunID + "-report.yaml", func(out io.Writer) error { return PrintYAMLReport(out, r) }},
		{w.kinds.HTML, r.RunID + "-report.html", func(out io.Writer) error { return GenerateHTMLReport(out, r) }},
	}

	var written []string
	for _, rd := range renders {
		if !rd.enabled {
			continue
		}
		path := filepath.Join(w.dir, rd.name)
		if err := writeFile(path, rd.write); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if w.kinds.Prometheus {
		path := filepath.Join(w.dir, r.RunID+".prom")
		if err := WritePrometheus(path, r); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
