// Package issue defines the canonical issue representation shared by the
// issue sources, the change detector and the notifiers.
package issue

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of an issue as reported by GitHub.
type State string

const (
	StateOpen   State = "OPEN"
	StateClosed State = "CLOSED"
)

// Assignee is a user assigned to an issue.
type Assignee struct {
	Login string
	Name  string
	Email string
}

// Issue is a GitHub issue as seen by statusnotify, independent of the
// GraphQL shape it was decoded from.
type Issue struct {
	ID         string // GraphQL node ID, stable across runs
	Number     int
	Title      string
	URL        string
	State      State
	Repository string // owner/name
	Labels     []string
	Assignees  []Assignee
}

// IsOpen reports whether the issue is open. GitHub reports states in upper
// case but lower-case values are accepted for hand-written fixtures.
func (i Issue) IsOpen() bool {
	return strings.EqualFold(string(i.State), string(StateOpen))
}

// HasLabel reports whether the issue carries the named label (case-insensitive,
// matching GitHub's label uniqueness rules).
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// Logins returns the assignee logins in assignment order.
func (i Issue) Logins() []string {
	logins := make([]string, 0, len(i.Assignees))
	for _, a := range i.Assignees {
		if a.Login != "" {
			logins = append(logins, a.Login)
		}
	}
	return logins
}

// Emails returns the non-empty assignee emails.
func (i Issue) Emails() []string {
	var emails []string
	for _, a := range i.Assignees {
		if a.Email != "" {
			emails = append(emails, a.Email)
		}
	}
	return emails
}

// String returns a short human-readable reference like "owner/repo#12".
func (i Issue) String() string {
	if i.Repository == "" {
		return fmt.Sprintf("#%d", i.Number)
	}
	return fmt.Sprintf("%s#%d", i.Repository, i.Number)
}

// Observation pairs an issue with the status label observed for it in the
// current run. An empty Status means the issue has no value for the tracked
// project field.
type Observation struct {
	Issue  Issue
	Status string
}

// HasStatus reports whether a status value was observed.
func (o Observation) HasStatus() bool {
	return o.Status != ""
}
