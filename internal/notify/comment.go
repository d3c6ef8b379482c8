package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/logging"
)

// CommentAPI is the part of the GitHub client the comment notifier uses.
type CommentAPI interface {
	HasComment(ctx context.Context, repository string, number int, text string) (bool, error)
	AddComment(ctx context.Context, subjectID, body string) (string, error)
}

// CommentNotifier mentions the assignees in a comment on the issue.
type CommentNotifier struct {
	api     CommentAPI
	logger  *logging.Logger
	message string
	dedup   bool
	dryRun  bool
}

// CommentOption configures a CommentNotifier.
type CommentOption func(*CommentNotifier)

// WithMessage overrides DefaultMessage.
func WithMessage(message string) CommentOption {
	return func(n *CommentNotifier) {
		if message != "" {
			n.message = message
		}
	}
}

// WithCommentDedup toggles the scan for an earlier notification comment.
func WithCommentDedup(enabled bool) CommentOption {
	return func(n *CommentNotifier) {
		n.dedup = enabled
	}
}

// WithCommentDryRun logs instead of posting.
func WithCommentDryRun(dryRun bool) CommentOption {
	return func(n *CommentNotifier) {
		n.dryRun = dryRun
	}
}

// NewCommentNotifier creates a CommentNotifier with dedup enabled.
func NewCommentNotifier(api CommentAPI, logger *logging.Logger, opts ...CommentOption) *CommentNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	n := &CommentNotifier{
		api:     api,
		logger:  logger,
		message: DefaultMessage,
		dedup:   true,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CommentBody builds the comment text: one mention per assignee followed by
// the informational line.
func CommentBody(iss issue.Issue, message string) string {
	var b strings.Builder
	for _, login := range iss.Logins() {
		b.WriteString("@")
		b.WriteString(login)
		b.WriteString(" ")
	}
	b.WriteString(message)
	return b.String()
}

// Notify posts the comment unless an earlier one is found or dry-run is on.
// An error from the duplicate scan does not block the post.
func (n *CommentNotifier) Notify(ctx context.Context, iss issue.Issue) (Outcome, error) {
	body := CommentBody(iss, n.message)

	if n.dryRun {
		n.logger.Infof("[dry-run] would comment on %s: %s", iss, body)
		return DryRun, nil
	}

	if n.dedup {
		found, err := n.api.HasComment(ctx, iss.Repository, iss.Number, n.message)
		if err != nil {
			n.logger.Warningf("Failed to check existing comments on %s, posting anyway: %v", iss, err)
			found = false
		}
		if found {
			n.logger.Infof("Comment already exists on %s, skipping", iss)
			return SkippedDuplicate, nil
		}
	}

	url, err := n.api.AddComment(ctx, iss.ID, body)
	if err != nil {
		return 0, fmt.Errorf("failed to comment on %s: %w", iss, err)
	}
	n.logger.Infof("Commented on %s: %s", iss, url)
	return Sent, nil
}
