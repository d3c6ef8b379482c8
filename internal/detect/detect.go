// Package detect computes which issues entered the target status since the
// previous run.
//
// Detect is a pure function: it takes the observations of the current run
// and the snapshot persisted by the previous run, and returns the detected
// transitions together with the snapshot to persist for the next run. The
// returned snapshot is a full recomputation, so issues that were not
// observed (or were filtered out) in this run are forgotten.
package detect

import (
	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/snapshot"
)

// Unknown is the previous status of an issue absent from the snapshot. It can
// never equal a real status label because GitHub option names cannot contain
// NUL.
const Unknown = "\x00unknown"

// Options configures detection.
type Options struct {
	// TargetStatus is the status label whose entry triggers a notification.
	TargetStatus string
	// OpenOnly excludes issues that are not open from both transitions and
	// the updated snapshot.
	OpenOnly bool
}

// Result is the outcome of one detection pass.
type Result struct {
	// Transitions holds the issues that entered TargetStatus this run, in
	// observation order.
	Transitions []issue.Issue
	// Snapshot is the status of every included issue, to be persisted.
	Snapshot snapshot.Snapshot

	// Counters for logging.
	Observed   int
	Closed     int
	NoStatus   int
	NoID       int
	Duplicates int
}

// Detect reconciles current observations against the previous snapshot.
func Detect(current []issue.Observation, previous snapshot.Snapshot, opts Options) Result {
	res := Result{
		Snapshot: snapshot.New(),
		Observed: len(current),
	}

	for _, obs := range current {
		id := obs.Issue.ID
		if id == "" {
			res.NoID++
			continue
		}
		if opts.OpenOnly && !obs.Issue.IsOpen() {
			res.Closed++
			continue
		}
		if !obs.HasStatus() {
			res.NoStatus++
			continue
		}
		if _, seen := res.Snapshot[id]; seen {
			res.Duplicates++
			continue
		}

		prev, ok := previous.Get(id)
		if !ok {
			prev = Unknown
		}

		if IsTransition(prev, obs.Status, opts.TargetStatus) {
			res.Transitions = append(res.Transitions, obs.Issue)
		}
		res.Snapshot[id] = obs.Status
	}

	return res
}

// IsTransition reports whether moving from previous to current enters target.
func IsTransition(previous, current, target string) bool {
	return previous != target && current == target
}
