// Package snapshot persists the last observed status of every tracked issue
// between runs.
package snapshot

import (
	"context"
	"sort"
)

// Snapshot maps an issue node ID to the status label observed for it in the
// run that produced the snapshot.
type Snapshot map[string]string

// New returns an empty snapshot.
func New() Snapshot {
	return Snapshot{}
}

// Get returns the recorded status for id and whether one was recorded.
func (s Snapshot) Get(id string) (string, bool) {
	status, ok := s[id]
	return status, ok
}

// Len returns the number of tracked issues.
func (s Snapshot) Len() int {
	return len(s)
}

// IDs returns the tracked issue IDs in sorted order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both snapshots track the same issues with the same statuses.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for id, status := range s {
		if o, ok := other[id]; !ok || o != status {
			return false
		}
	}
	return true
}

// Store loads and saves snapshots. Save always replaces the stored snapshot
// as a whole; there is no merge.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}
