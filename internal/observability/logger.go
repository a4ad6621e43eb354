package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
)

// NewLogger builds the process logger from cfg. Records go to stdout and,
// unless cfg.LogFile is "-", to a file rotated at local midnight. The
// returned closer releases the file.
func NewLogger(cfg *config.Config, clock clockwork.Clock) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" && cfg.LogFile != "-" {
		rf, err := OpenRotatingFile(cfg.LogFile, clock)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, rf)
		closer = rf
	}
	return slog.New(newHandler(out, cfg.LogFormat, cfg.LogLevel)), closer, nil
}

func newHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RotatingFile appends to path and, on the first write after local midnight,
// renames the file to path.YYYY-MM-DD and starts a fresh one.
type RotatingFile struct {
	mu    sync.Mutex
	path  string
	clock clockwork.Clock
	f     *os.File
	next  time.Time
}

// OpenRotatingFile opens or creates path. An existing file's modification
// time decides when its first rotation is due.
func OpenRotatingFile(path string, clock clockwork.Clock) (*RotatingFile, error) {
	r := &RotatingFile{path: path, clock: clock}
	since := clock.Now()
	if fi, err := os.Stat(path); err == nil {
		since = fi.ModTime()
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	r.next = nextMidnight(since)
	return r, nil
}

func (r *RotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.f = f
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return 0, os.ErrClosed
	}
	if now := r.clock.Now(); !now.Before(r.next) {
		if err := r.rotate(now); err != nil {
			return 0, err
		}
	}
	return r.f.Write(p)
}

func (r *RotatingFile) rotate(now time.Time) error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rotated := r.path + "." + r.next.AddDate(0, 0, -1).Format("2006-01-02")
	if err := os.Rename(r.path, rotated); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	r.next = nextMidnight(now)
	return r.open()
}

// Close closes the current file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
