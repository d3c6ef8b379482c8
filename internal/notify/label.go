package notify

import (
	"context"

	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/logging"
)

// LabelAPI is the part of the GitHub client the label guard uses.
type LabelAPI interface {
	LabelID(ctx context.Context, repository, name string) (string, error)
	AddLabels(ctx context.Context, labelableID string, labelIDs ...string) error
}

// LabelGuard wraps a Notifier so that issues carrying label are skipped and
// issues it notifies get the label. Labelling is best-effort.
type LabelGuard struct {
	next   Notifier
	api    LabelAPI
	label  string
	logger *logging.Logger
}

// NewLabelGuard wraps next. An empty label returns next unchanged.
func NewLabelGuard(next Notifier, api LabelAPI, label string, logger *logging.Logger) Notifier {
	if label == "" {
		return next
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LabelGuard{next: next, api: api, label: label, logger: logger}
}

// Notify delegates unless the issue is already labelled.
func (g *LabelGuard) Notify(ctx context.Context, iss issue.Issue) (Outcome, error) {
	if iss.HasLabel(g.label) {
		g.logger.Infof("%s already has label %q, skipping", iss, g.label)
		return SkippedLabeled, nil
	}

	outcome, err := g.next.Notify(ctx, iss)
	if err != nil || outcome != Sent {
		return outcome, err
	}

	id, err := g.api.LabelID(ctx, iss.Repository, g.label)
	if err != nil {
		g.logger.Warningf("Failed to look up label %q for %s: %v", g.label, iss, err)
		return outcome, nil
	}
	if err := g.api.AddLabels(ctx, iss.ID, id); err != nil {
		g.logger.Warningf("Failed to label %s: %v", iss, err)
	}
	return outcome, nil
}
