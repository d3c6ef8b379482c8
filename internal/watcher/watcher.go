// Package watcher runs one polling pass: it loads the previous snapshot,
// fetches the current issue statuses, detects transitions into the target
// status, notifies, and persists the new snapshot.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/andywolf/statusnotify/internal/detect"
	"github.com/andywolf/statusnotify/internal/events"
	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/logging"
	"github.com/andywolf/statusnotify/internal/notify"
	"github.com/andywolf/statusnotify/internal/snapshot"
)

// Source lists the issues tracked by the run with their current status.
// On failure it returns whatever it gathered alongside the error.
type Source interface {
	Fetch(ctx context.Context) ([]issue.Observation, error)
}

// EventSink records notification attempts. *events.FileSink implements it.
type EventSink interface {
	WriteOne(event events.Event) error
}

// Phase is a step of a run.
type Phase string

const (
	PhaseLoad    Phase = "LOAD_SNAPSHOT"
	PhaseFetch   Phase = "FETCH_ISSUES"
	PhaseDetect  Phase = "DETECT"
	PhaseNotify  Phase = "NOTIFY"
	PhasePersist Phase = "PERSIST_SNAPSHOT"
	PhaseDone    Phase = "DONE"
)

// Options configures a Watcher.
type Options struct {
	TargetStatus string
	OpenOnly     bool
	// PreserveOnFetchError skips persisting when the fetch failed, so issues
	// missing from a partial result are not forgotten.
	PreserveOnFetchError bool
	DryRun               bool
}

// Summary reports what a run did.
type Summary struct {
	RunID       string
	Fetched     int
	Tracked     int
	Transitions int
	Sent        int
	DryRun      int
	Skipped     int
	Failed      int
	FetchError  error
	Persisted   bool
	Duration    time.Duration
}

// Watcher drives a single run.
type Watcher struct {
	source   Source
	notifier notify.Notifier
	store    snapshot.Store
	logger   *logging.Logger
	opts     Options
	runID    string
	events   EventSink
	nowFunc  func() time.Time
}

// Option configures optional Watcher collaborators.
type Option func(*Watcher)

// WithEventSink records every notification attempt in sink.
func WithEventSink(sink EventSink) Option {
	return func(w *Watcher) {
		w.events = sink
	}
}

// WithNowFunc overrides the clock used for durations and event timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(w *Watcher) {
		w.nowFunc = now
	}
}

// New creates a Watcher. runID labels the run in logs and events.
func New(source Source, notifier notify.Notifier, store snapshot.Store, logger *logging.Logger, runID string, opts Options, extra ...Option) *Watcher {
	if logger == nil {
		logger = logging.Discard()
	}
	w := &Watcher{
		source:   source,
		notifier: notifier,
		store:    store,
		logger:   logger,
		opts:     opts,
		runID:    runID,
		nowFunc:  time.Now,
	}
	for _, o := range extra {
		o(w)
	}
	return w
}

// Run executes one pass. It returns an error only when the snapshot cannot
// be loaded or the context is cancelled before the snapshot is persisted;
// fetch, notify and persist failures are logged and reflected in the
// Summary.
func (w *Watcher) Run(ctx context.Context) (sum Summary, err error) {
	start := w.nowFunc()
	sum.RunID = w.runID
	defer func() { sum.Duration = w.nowFunc().Sub(start) }()

	w.phase(PhaseLoad)
	previous, err := w.store.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to load snapshot: %w", err)
	}
	w.logger.Infof("Loaded snapshot with %d tracked issue(s)", previous.Len())

	w.phase(PhaseFetch)
	observations, fetchErr := w.source.Fetch(ctx)
	sum.Fetched = len(observations)
	if fetchErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, ctxErr
		}
		sum.FetchError = fetchErr
		w.logger.Errorf("Fetch failed, continuing with %d issue(s): %v", len(observations), fetchErr)
	} else {
		w.logger.Infof("Fetched %d issue(s)", len(observations))
	}

	w.phase(PhaseDetect)
	res := detect.Detect(observations, previous, detect.Options{
		TargetStatus: w.opts.TargetStatus,
		OpenOnly:     w.opts.OpenOnly,
	})
	sum.Tracked = res.Snapshot.Len()
	sum.Transitions = len(res.Transitions)
	w.logger.Infof("Detected %d transition(s) into %q (closed=%d no_status=%d no_id=%d duplicates=%d)",
		len(res.Transitions), w.opts.TargetStatus, res.Closed, res.NoStatus, res.NoID, res.Duplicates)

	w.phase(PhaseNotify)
	for _, iss := range res.Transitions {
		if err := ctx.Err(); err != nil {
			w.logger.Warningf("Run cancelled before notifying %s; snapshot not saved", iss)
			return sum, err
		}
		w.notifyOne(ctx, iss, &sum)
	}

	w.phase(PhasePersist)
	switch {
	case sum.FetchError != nil && w.opts.PreserveOnFetchError:
		w.logger.Warningf("Keeping previous snapshot because the fetch failed")
	default:
		if err := w.store.Save(ctx, res.Snapshot); err != nil {
			w.logger.Errorf("Failed to save snapshot: %v", err)
		} else {
			sum.Persisted = true
			w.logger.Infof("Saved snapshot with %d tracked issue(s)", res.Snapshot.Len())
		}
	}

	w.phase(PhaseDone)
	return sum, nil
}

func (w *Watcher) notifyOne(ctx context.Context, iss issue.Issue, sum *Summary) {
	w.logger.Debugf("%s (%s) moved to %q", iss, iss.URL, w.opts.TargetStatus)

	outcome, err := w.notifier.Notify(ctx, iss)
	if err != nil {
		sum.Failed++
		w.logger.Errorf("Failed to notify %s: %v", iss, err)
		w.record(iss, events.EventFailed, "", err)
		return
	}

	var kind events.EventType
	switch {
	case outcome == notify.Sent:
		sum.Sent++
		kind = events.EventSent
	case outcome == notify.DryRun:
		sum.DryRun++
		kind = events.EventDryRun
	case outcome.Skipped():
		sum.Skipped++
		kind = events.EventSkipped
	}
	w.logger.InfoWithLabels(map[string]string{"issue": iss.String(), "outcome": outcome.String()},
		"Notification for %s: %s", iss, outcome)
	w.record(iss, kind, outcome.String(), nil)
}

// record writes an event when a sink is configured. Failures are logged.
func (w *Watcher) record(iss issue.Issue, kind events.EventType, outcome string, notifyErr error) {
	if w.events == nil || kind == "" {
		return
	}
	ev := events.Event{
		Timestamp:  w.nowFunc().UTC(),
		RunID:      w.runID,
		Type:       kind,
		IssueID:    iss.ID,
		Repository: iss.Repository,
		Number:     iss.Number,
		Title:      iss.Title,
		URL:        iss.URL,
		Status:     w.opts.TargetStatus,
		Outcome:    outcome,
	}
	if notifyErr != nil {
		ev.Error = w.logger.Scrubber().Scrub(notifyErr.Error())
	}
	if err := w.events.WriteOne(ev); err != nil {
		w.logger.Warningf("Failed to record event for %s: %v", iss, err)
	}
}

func (w *Watcher) phase(p Phase) {
	w.logger.Debugf("Phase %s", p)
}

// LogSummary writes the run summary in a fixed block.
func LogSummary(logger *logging.Logger, sum Summary) {
	logger.Infof("=== Run Summary ===")
	logger.Infof("Run ID: %s", sum.RunID)
	logger.Infof("Fetched: %d, tracked: %d", sum.Fetched, sum.Tracked)
	logger.Infof("Transitions: %d", sum.Transitions)
	logger.Infof("Sent: %d, dry-run: %d, skipped: %d, failed: %d", sum.Sent, sum.DryRun, sum.Skipped, sum.Failed)
	if sum.FetchError != nil {
		logger.Infof("Fetch error: %v", sum.FetchError)
	}
	logger.Infof("Snapshot saved: %v", sum.Persisted)
	logger.Infof("Duration: %s", sum.Duration.Round(time.Millisecond))
}
