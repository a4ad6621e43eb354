// Package metricslog appends one CSV row per extraction job recording its
// date range, number of feature ids and wall-clock duration.
package metricslog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// Header is the first line of a metrics log.
var Header = []string{"start_date", "end_date", "#comids", "duration"}

// Entry is one row of the log.
type Entry struct {
	Start    time.Time
	End      time.Time
	ComIDs   int
	Duration time.Duration
}

// Log is an append-only metrics log. It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens path for appending, writing the header if the file is new or
// empty.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics log %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat metrics log %s: %w", path, err)
	}
	l := &Log{f: f, path: path}
	if st.Size() == 0 {
		if err := l.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Record appends e.
func (l *Log) Record(e Entry) error {
	return l.write([]string{
		e.Start.Format(domain.DateLayout),
		e.End.Format(domain.DateLayout),
		strconv.Itoa(e.ComIDs),
		strconv.FormatFloat(e.Duration.Seconds(), 'f', 3, 64),
	})
}

func (l *Log) write(record []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("metrics log closed")
	}
	w := csv.NewWriter(l.f)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write metrics log %s: %w", l.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write metrics log %s: %w", l.path, err)
	}
	return nil
}

// Close closes the file. Further records fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Read parses a metrics log.
func Read(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	var out []Entry
	for i, rec := range records[1:] {
		e, err := parseEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func parseEntry(rec []string) (Entry, error) {
	start, err := time.Parse(domain.DateLayout, rec[0])
	if err != nil {
		return Entry{}, err
	}
	end, err := time.Parse(domain.DateLayout, rec[1])
	if err != nil {
		return Entry{}, err
	}
	n, err := strconv.Atoi(rec[2])
	if err != nil {
		return Entry{}, err
	}
	secs, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Start: start, End: end, ComIDs: n, Duration: time.Duration(secs * float64(time.Second))}, nil
}
