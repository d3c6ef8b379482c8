package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink appends Events to a JSONL file.
// It is safe for concurrent use from multiple goroutines.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewFileSink opens path for appending, creating it and its directory if
// needed.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create events directory: %w", err)
		}
	}

	// 0600: the history carries issue titles from private repositories.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write writes a batch of events, one JSON object per line, and flushes.
func (s *FileSink) Write(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("events file %s is closed", s.path)
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}

	return nil
}

// WriteOne writes a single event.
func (s *FileSink) WriteOne(event Event) error {
	return s.Write([]Event{event})
}

// Close flushes any remaining data and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		// Still try to close the file even if flush fails
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}

	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("failed to close events file: %w", err)
	}

	s.file = nil
	return nil
}

// Path returns the path to the events file.
func (s *FileSink) Path() string {
	return s.path
}

// ReadEvents reads all events from a JSONL file.
func ReadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []Event
	scanner := bufio.NewScanner(file)

	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event on line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	return events, nil
}

// FilterByType filters events by event type.
func FilterByType(events []Event, types ...EventType) []Event {
	if len(types) == 0 {
		return events
	}

	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	var filtered []Event
	for _, event := range events {
		if typeSet[event.Type] {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// FilterByIssue returns the events recorded for one issue ID.
// An empty id returns all events.
func FilterByIssue(events []Event, id string) []Event {
	if id == "" {
		return events
	}

	var filtered []Event
	for _, event := range events {
		if event.IssueID == id {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// LastNotified returns, per issue ID, the time of the latest sent event.
func LastNotified(events []Event) map[string]time.Time {
	last := make(map[string]time.Time)
	for _, event := range events {
		if event.Type != EventSent {
			continue
		}
		if event.Timestamp.After(last[event.IssueID]) {
			last[event.IssueID] = event.Timestamp
		}
	}
	return last
}
