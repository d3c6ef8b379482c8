// Package notify delivers "ready for testing" notifications for issues that
// entered the target status.
package notify

import (
	"context"
	"fmt"

	"github.com/andywolf/statusnotify/internal/issue"
)

// DefaultMessage is the informational line posted in comments. It doubles
// as the marker the comment dedup scan looks for.
const DefaultMessage = "This issue is ready for testing. Please proceed accordingly."

// Type selects the delivery channel.
type Type string

const (
	TypeComment Type = "comment"
	TypeEmail   Type = "email"
)

// ParseType validates a notification type setting.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeComment, TypeEmail:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unsupported notification type %q (want comment or email)", s)
	}
}

// Outcome describes what a notifier did for one issue.
type Outcome int

const (
	// Sent means a notification was delivered.
	Sent Outcome = iota
	// DryRun means a notification would have been delivered.
	DryRun
	// SkippedDuplicate means an earlier notification was found on the issue.
	SkippedDuplicate
	// SkippedLabeled means the issue already carries the notified label.
	SkippedLabeled
	// SkippedNoRecipients means nobody could be notified.
	SkippedNoRecipients
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case DryRun:
		return "dry-run"
	case SkippedDuplicate:
		return "skipped-duplicate"
	case SkippedLabeled:
		return "skipped-labeled"
	case SkippedNoRecipients:
		return "skipped-no-recipients"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Skipped reports whether the outcome is one of the skip outcomes.
func (o Outcome) Skipped() bool {
	return o >= SkippedDuplicate
}

// Notifier delivers at most one notification for an issue per call.
type Notifier interface {
	Notify(ctx context.Context, iss issue.Issue) (Outcome, error)
}
