// Package runlog records one JSON line per pipeline stage outcome. The
// event log is an operational trail, never an input to trust decisions:
// a stage that cannot log still runs, and a log write failure is
// surfaced on stderr without failing the run.
package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreerrors "github.com/repo-trust/repo-trust/core/errors"
)

const maxEventLineBytes = 1024 * 1024

// Event is one stage outcome.
type Event struct {
	At            string `json:"at"`
	Stage         string `json:"stage"`
	Outcome       string `json:"outcome"`
	Repository    string `json:"repository,omitempty"`
	Release       string `json:"release,omitempty"`
	ElapsedMS     int64  `json:"elapsed_ms"`
	ErrorCategory string `json:"error_category,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Logger writes stage events to stderr and, when Path is set, appends
// them to a JSON-lines event log.
type Logger struct {
	Path       string
	Repository string
	Release    string

	// Stderr is overridable for tests; nil means os.Stderr.
	Stderr io.Writer
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

// StageDone records one finished stage. A nil err is an ok outcome;
// otherwise the event carries the error's classification.
func (l *Logger) StageDone(stage string, elapsed time.Duration, err error) {
	elapsedMS := elapsed.Milliseconds()
	if elapsedMS < 0 {
		elapsedMS = 0
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	event := Event{
		At:         now().UTC().Format(time.RFC3339),
		Stage:      stage,
		Outcome:    OutcomeOK,
		Repository: l.Repository,
		Release:    l.Release,
		ElapsedMS:  elapsedMS,
	}
	if err != nil {
		event.Outcome = OutcomeFailed
		event.ErrorCategory = string(coreerrors.CategoryOf(err))
		event.ErrorCode = coreerrors.CodeOf(err)
		event.Detail = err.Error()
	}
	l.emit(event)
}

func (l *Logger) emit(event Event) {
	stderr := l.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if event.Outcome == OutcomeOK {
		fmt.Fprintf(stderr, "[repo-trust] %s ok (%dms)\n", event.Stage, event.ElapsedMS)
	} else {
		fmt.Fprintf(stderr, "[repo-trust] %s failed: %s\n", event.Stage, event.Detail)
	}
	if strings.TrimSpace(l.Path) == "" {
		return
	}
	if err := appendEvent(l.Path, event); err != nil {
		fmt.Fprintf(stderr, "[repo-trust] event log write failed: %v\n", err)
	}
}

func appendEvent(path string, event Event) error {
	trimmedPath := strings.TrimSpace(path)
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	dir := filepath.Dir(trimmedPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create event log directory: %w", err)
		}
	}
	// #nosec G304 -- event log path is explicit local user input.
	file, err := os.OpenFile(trimmedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

// LoadEvents reads an event log back, skipping blank lines.
func LoadEvents(path string) ([]Event, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("event log path is required")
	}
	// #nosec G304 -- event log path is explicit local user input.
	file, err := os.Open(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	events := make([]Event, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("parse event log line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}
