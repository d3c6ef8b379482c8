// Package events records what each run did to each issue as a JSONL
// history, one line per notification attempt.
package events

import (
	"time"
)

// EventType identifies the result of a notification attempt.
type EventType string

const (
	// EventSent is a notification that was delivered.
	EventSent EventType = "sent"
	// EventDryRun is a notification that was only logged.
	EventDryRun EventType = "dry_run"
	// EventSkipped is a transition that needed no notification.
	EventSkipped EventType = "skipped"
	// EventFailed is a notification that could not be delivered.
	EventFailed EventType = "failed"
)

// Event is one line of the history file.
type Event struct {
	Timestamp time.Time `json:"timestamp"`

	// RunID identifies the run that produced the event.
	RunID string `json:"run_id"`

	Type EventType `json:"type"`

	IssueID    string `json:"issue_id"`
	Repository string `json:"repository,omitempty"`
	Number     int    `json:"number,omitempty"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`

	// Status is the status the issue moved into.
	Status string `json:"status"`

	// Outcome is the notifier's outcome, for example "skipped_duplicate".
	Outcome string `json:"outcome,omitempty"`

	// Error is set for failed events.
	Error string `json:"error,omitempty"`
}

// ValidEventTypes returns all valid event type values.
func ValidEventTypes() []EventType {
	return []EventType{
		EventSent,
		EventDryRun,
		EventSkipped,
		EventFailed,
	}
}

// IsValidEventType checks if the given string is a valid event type.
func IsValidEventType(s string) bool {
	for _, t := range ValidEventTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}
