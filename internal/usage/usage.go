// Package usage records one event per remote API attempt and builds usage
// reports from the recorded log.
package usage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Outcome of a single remote call attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeError       Outcome = "error"
)

// Event is emitted exactly once per remote call attempt.
type Event struct {
	Timestamp time.Time
	API       string
	Outcome   Outcome
}

// Recorder receives usage events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event)

func (f RecorderFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// FileLog appends "unix_seconds,api_name" lines to a file.
type FileLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	now  func() time.Time
	err  error
}

// OpenFileLog opens (creating if needed) an append-only usage log.
func OpenFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLog{path: path, f: f, now: time.Now}, nil
}

func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Record(_ context.Context, ev Event) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	line := fmt.Sprintf("%s,%s\n", strconv.FormatFloat(float64(ts.UnixNano())/1e9, 'f', 6, 64), ev.API)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteString(line); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first write error, if any.
func (l *FileLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Read parses usage lines. Blank lines are skipped; malformed lines are an error.
func Read(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		tsRaw, api, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("usage: line %d: missing api name", line)
		}
		secs, err := strconv.ParseFloat(tsRaw, 64)
		if err != nil {
			return nil, fmt.Errorf("usage: line %d: bad timestamp: %w", line, err)
		}
		whole := int64(secs)
		events = append(events, Event{
			Timestamp: time.Unix(whole, int64((secs-float64(whole))*1e9)),
			API:       api,
		})
	}
	return events, sc.Err()
}

// ReadFile reads a usage log; a missing file yields no events.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Report summarizes recorded calls.
type Report struct {
	TotalCalls int            `json:"total_api_calls"`
	Breakdown  map[string]int `json:"api_usage_breakdown"`
	FirstCall  *time.Time     `json:"first_call_timestamp"`
	LastCall   *time.Time     `json:"last_call_timestamp"`
}

// APIs returns breakdown keys sorted by name.
func (r Report) APIs() []string {
	names := make([]string, 0, len(r.Breakdown))
	for k := range r.Breakdown {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// BuildReport aggregates events inside [from, to]. Zero bounds are open.
func BuildReport(events []Event, from, to time.Time) Report {
	rep := Report{Breakdown: map[string]int{}}
	for _, ev := range events {
		if !from.IsZero() && ev.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && ev.Timestamp.After(to) {
			continue
		}
		rep.TotalCalls++
		rep.Breakdown[ev.API]++
		ts := ev.Timestamp
		if rep.FirstCall == nil || ts.Before(*rep.FirstCall) {
			rep.FirstCall = &ts
		}
		if rep.LastCall == nil || ts.After(*rep.LastCall) {
			rep.LastCall = &ts
		}
	}
	return rep
}
