package watcher

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/statusnotify/internal/events"
	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/logging"
	"github.com/andywolf/statusnotify/internal/notify"
	"github.com/andywolf/statusnotify/internal/snapshot"
)

const qa = "QA Testing"

type fakeSource struct {
	obs   []issue.Observation
	err   error
	calls int
}

func (f *fakeSource) Fetch(context.Context) ([]issue.Observation, error) {
	f.calls++
	return f.obs, f.err
}

type fakeNotifier struct {
	notified []string
	outcome  notify.Outcome
	failOn   map[string]bool
}

func (f *fakeNotifier) Notify(_ context.Context, iss issue.Issue) (notify.Outcome, error) {
	if f.failOn[iss.ID] {
		return 0, errors.New("delivery failed")
	}
	f.notified = append(f.notified, iss.ID)
	return f.outcome, nil
}

type memStore struct {
	snap    snapshot.Snapshot
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load(context.Context) (snapshot.Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.snap == nil {
		return snapshot.New(), nil
	}
	return m.snap, nil
}

func (m *memStore) Save(_ context.Context, s snapshot.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snap = s
	return nil
}

func obs(id, status string) issue.Observation {
	return issue.Observation{
		Issue:  issue.Issue{ID: id, Number: 1, State: issue.StateOpen, Repository: "acme/api"},
		Status: status,
	}
}

func newWatcher(src Source, n notify.Notifier, store snapshot.Store, opts Options) *Watcher {
	if opts.TargetStatus == "" {
		opts.TargetStatus = qa
	}
	return New(src, n, store, logging.Discard(), "run-test", opts)
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		previous     snapshot.Snapshot
		current      []issue.Observation
		wantNotified []string
		wantSnapshot snapshot.Snapshot
	}{
		{
			name:         "first sighting in target fires",
			previous:     snapshot.Snapshot{},
			current:      []issue.Observation{obs("A", qa)},
			wantNotified: []string{"A"},
			wantSnapshot: snapshot.Snapshot{"A": qa},
		},
		{
			name:         "staying in target does not fire",
			previous:     snapshot.Snapshot{"A": qa},
			current:      []issue.Observation{obs("A", qa)},
			wantSnapshot: snapshot.Snapshot{"A": qa},
		},
		{
			name:         "leaving target is recorded",
			previous:     snapshot.Snapshot{"A": qa},
			current:      []issue.Observation{obs("A", "Done")},
			wantSnapshot: snapshot.Snapshot{"A": "Done"},
		},
		{
			name:         "missing issues are forgotten",
			previous:     snapshot.Snapshot{"A": "Done", "B": qa},
			current:      []issue.Observation{obs("A", qa)},
			wantNotified: []string{"A"},
			wantSnapshot: snapshot.Snapshot{"A": qa},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{snap: tt.previous}
			n := &fakeNotifier{outcome: notify.Sent}
			w := newWatcher(&fakeSource{obs: tt.current}, n, store, Options{OpenOnly: true})

			sum, err := w.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantNotified, n.notified)
			assert.True(t, tt.wantSnapshot.Equal(store.snap), "snapshot = %v, want %v", store.snap, tt.wantSnapshot)
			assert.True(t, sum.Persisted)
			assert.Equal(t, len(tt.wantNotified), sum.Transitions)
			assert.Equal(t, len(tt.wantNotified), sum.Sent)
			assert.Equal(t, "run-test", sum.RunID)
		})
	}
}

func TestRun_ReentryFiresAgain(t *testing.T) {
	store := &memStore{snap: snapshot.Snapshot{"A": qa}}
	n := &fakeNotifier{outcome: notify.Sent}
	src := &fakeSource{}
	w := newWatcher(src, n, store, Options{})

	src.obs = []issue.Observation{obs("A", "Done")}
	_, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, n.notified)

	src.obs = []issue.Observation{obs("A", qa)}
	_, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, n.notified)

	_, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, n.notified, "steady state must not fire again")
}

func TestRun_DryRunStillDetectsAndPersists(t *testing.T) {
	var logs bytes.Buffer
	api := &countingCommentAPI{}
	notifier := notify.NewCommentNotifier(api, logging.New(&logs, ""), notify.WithCommentDryRun(true))
	store := &memStore{}

	w := New(&fakeSource{obs: []issue.Observation{obs("A", qa)}}, notifier, store, logging.New(&logs, ""), "run-dry",
		Options{TargetStatus: qa, DryRun: true})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, api.adds, "dry run must not post")
	assert.Equal(t, 0, api.checks, "dry run must not scan comments")
	assert.Equal(t, 1, sum.Transitions)
	assert.Equal(t, 1, sum.DryRun)
	assert.Equal(t, 1, strings.Count(logs.String(), "[dry-run]"), "one dry-run line per transition")
	assert.True(t, snapshot.Snapshot{"A": qa}.Equal(store.snap))
}

type countingCommentAPI struct {
	checks  int
	adds    int
	scanErr error
}

func (c *countingCommentAPI) HasComment(context.Context, string, int, string) (bool, error) {
	c.checks++
	return false, c.scanErr
}

func (c *countingCommentAPI) AddComment(context.Context, string, string) (string, error) {
	c.adds++
	return "", nil
}

func TestRun_CommentScanErrorStillPosts(t *testing.T) {
	api := &countingCommentAPI{scanErr: errors.New("502 bad gateway")}
	notifier := notify.NewCommentNotifier(api, nil)
	store := &memStore{}
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}}

	sum, err := newWatcher(src, notifier, store, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 1, api.adds, "transition must produce a comment")
	assert.True(t, snapshot.Snapshot{"A": qa}.Equal(store.snap))

	api.scanErr = nil
	sum, err = newWatcher(src, notifier, store, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Transitions)
	assert.Equal(t, 1, api.adds)
}

func TestRun_LoadErrorAbortsBeforeFetch(t *testing.T) {
	src := &fakeSource{}
	store := &memStore{loadErr: snapshot.ErrCorrupt}
	w := newWatcher(src, &fakeNotifier{}, store, Options{})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrCorrupt)
	assert.Equal(t, 0, src.calls)
	assert.Equal(t, 0, store.saves)
}

func TestRun_FetchErrorUsesPartialResults(t *testing.T) {
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}, err: errors.New("502 on page 2")}
	store := &memStore{snap: snapshot.Snapshot{"B": "Todo"}}
	n := &fakeNotifier{outcome: notify.Sent}
	w := newWatcher(src, n, store, Options{})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Error(t, sum.FetchError)
	assert.Equal(t, []string{"A"}, n.notified)
	assert.True(t, sum.Persisted)
	assert.True(t, snapshot.Snapshot{"A": qa}.Equal(store.snap), "B is forgotten by default")
}

func TestRun_PreserveOnFetchError(t *testing.T) {
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}, err: errors.New("502 on page 2")}
	previous := snapshot.Snapshot{"B": "Todo"}
	store := &memStore{snap: previous}
	n := &fakeNotifier{outcome: notify.Sent}
	w := newWatcher(src, n, store, Options{PreserveOnFetchError: true})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, n.notified)
	assert.False(t, sum.Persisted)
	assert.Equal(t, 0, store.saves)
	assert.True(t, previous.Equal(store.snap))
}

func TestRun_NotifyFailureStillRecorded(t *testing.T) {
	src := &fakeSource{obs: []issue.Observation{obs("A", qa), obs("B", qa)}}
	store := &memStore{}
	n := &fakeNotifier{outcome: notify.Sent, failOn: map[string]bool{"A": true}}
	w := newWatcher(src, n, store, Options{})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Sent)
	assert.True(t, snapshot.Snapshot{"A": qa, "B": qa}.Equal(store.snap))
}

func TestRun_SkippedOutcomes(t *testing.T) {
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}}
	n := &fakeNotifier{outcome: notify.SkippedDuplicate}
	w := newWatcher(src, n, &memStore{}, Options{})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Sent)
}

func TestRun_SaveErrorIsLogged(t *testing.T) {
	var logs bytes.Buffer
	store := &memStore{saveErr: errors.New("read-only file system")}
	w := New(&fakeSource{}, &fakeNotifier{}, store, logging.New(&logs, ""), "r", Options{TargetStatus: qa})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Persisted)
	assert.Contains(t, logs.String(), "Failed to save snapshot")
}

func TestRun_CancelledDuringNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &memStore{}
	n := &cancellingNotifier{cancel: cancel}
	src := &fakeSource{obs: []issue.Observation{obs("A", qa), obs("B", qa)}}
	w := newWatcher(src, n, store, Options{})

	_, err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, 0, store.saves, "a cancelled run must not persist")
}

type cancellingNotifier struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingNotifier) Notify(context.Context, issue.Issue) (notify.Outcome, error) {
	c.calls++
	c.cancel()
	return notify.Sent, nil
}

func TestRun_WithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := snapshot.NewFileStore(path)
	n := &fakeNotifier{outcome: notify.Sent}
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}}
	w := newWatcher(src, n, store, Options{})

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	_, err = w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, n.notified)
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snapshot.Snapshot{"A": qa}.Equal(loaded))
}

func TestLogSummary(t *testing.T) {
	var logs bytes.Buffer
	LogSummary(logging.New(&logs, ""), Summary{RunID: "r1", Sent: 2, FetchError: errors.New("boom"), Persisted: true})

	out := logs.String()
	assert.Contains(t, out, "=== Run Summary ===")
	assert.Contains(t, out, "Run ID: r1")
	assert.Contains(t, out, "Sent: 2")
	assert.Contains(t, out, "Fetch error: boom")
}

type memSink struct {
	events []events.Event
	err    error
}

func (m *memSink) WriteOne(ev events.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func TestRun_RecordsEvents(t *testing.T) {
	src := &fakeSource{obs: []issue.Observation{obs("A", qa), obs("B", qa), obs("C", "In Progress")}}
	n := &fakeNotifier{outcome: notify.Sent, failOn: map[string]bool{"B": true}}
	sink := &memSink{}
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	w := New(src, n, &memStore{}, logging.Discard(), "run-ev", Options{TargetStatus: qa},
		WithEventSink(sink), WithNowFunc(func() time.Time { return fixed }))

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.events, 2)

	byID := map[string]events.Event{}
	for _, ev := range sink.events {
		byID[ev.IssueID] = ev
	}
	assert.Equal(t, events.EventSent, byID["A"].Type)
	assert.Equal(t, "sent", byID["A"].Outcome)
	assert.Equal(t, "run-ev", byID["A"].RunID)
	assert.Equal(t, qa, byID["A"].Status)
	assert.True(t, byID["A"].Timestamp.Equal(fixed))
	assert.Equal(t, events.EventFailed, byID["B"].Type)
	assert.Equal(t, "delivery failed", byID["B"].Error)
}

func TestRun_EventSinkErrorIsLogged(t *testing.T) {
	var logs bytes.Buffer
	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}}
	store := &memStore{}
	w := New(src, &fakeNotifier{outcome: notify.SkippedLabeled}, store, logging.New(&logs, ""), "r",
		Options{TargetStatus: qa}, WithEventSink(&memSink{err: errors.New("disk full")}))

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.True(t, sum.Persisted)
	assert.Contains(t, logs.String(), "Failed to record event")
}

func TestRun_WithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := events.NewFileSink(path)
	require.NoError(t, err)

	src := &fakeSource{obs: []issue.Observation{obs("A", qa)}}
	w := New(src, &fakeNotifier{outcome: notify.DryRun}, &memStore{}, logging.Discard(), "r",
		Options{TargetStatus: qa, DryRun: true}, WithEventSink(sink))
	_, err = w.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	got, err := events.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.EventDryRun, got[0].Type)
	assert.Equal(t, "acme/api", got[0].Repository)
}
