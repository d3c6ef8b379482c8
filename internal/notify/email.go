package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/andywolf/statusnotify/internal/issue"
	"github.com/andywolf/statusnotify/internal/logging"
)

// Message is a rendered email.
type Message struct {
	From     string
	To       []string
	Subject  string
	HTMLBody string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Hello,</p>
<p><a href="{{.Issue.URL}}">{{.Issue.Title}} (#{{.Issue.Number}})</a> in <strong>{{.Issue.Repository}}</strong> has moved to <strong>{{.Status}}</strong>.</p>
<p>{{.Message}}</p>
{{- if .Issue.Assignees}}
<p>Assignees:</p>
<ul>
{{- range .Issue.Assignees}}
<li>{{if .Name}}{{.Name}} ({{.Login}}){{else}}{{.Login}}{{end}}{{if not .Email}} (no public email){{end}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`))

// EmailSubject returns the subject line for an issue.
func EmailSubject(iss issue.Issue) string {
	return fmt.Sprintf("[%s] %s (#%d) is ready for testing", iss.Repository, iss.Title, iss.Number)
}

// RenderEmailBody renders the HTML body for an issue.
func RenderEmailBody(iss issue.Issue, status, message string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Issue   issue.Issue
		Status  string
		Message string
	}{iss, status, message}
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email body: %w", err)
	}
	return buf.String(), nil
}

// EmailNotifier mails the assignees that have a public email address.
type EmailNotifier struct {
	mailer  Mailer
	logger  *logging.Logger
	from    string
	status  string
	message string
	dryRun  bool
}

// NewEmailNotifier creates an EmailNotifier sending from the given address.
// status is the target status named in the body.
func NewEmailNotifier(mailer Mailer, logger *logging.Logger, from, status, message string, dryRun bool) *EmailNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	if message == "" {
		message = DefaultMessage
	}
	return &EmailNotifier{
		mailer:  mailer,
		logger:  logger,
		from:    from,
		status:  status,
		message: message,
		dryRun:  dryRun,
	}
}

// Notify sends one email addressed to every assignee with an email.
func (n *EmailNotifier) Notify(ctx context.Context, iss issue.Issue) (Outcome, error) {
	to := iss.Emails()
	if len(to) == 0 {
		n.logger.Warningf("No assignee of %s has a public email, skipping", iss)
		return SkippedNoRecipients, nil
	}

	body, err := RenderEmailBody(iss, n.status, n.message)
	if err != nil {
		return 0, err
	}
	msg := Message{
		From:     n.from,
		To:       to,
		Subject:  EmailSubject(iss),
		HTMLBody: body,
	}

	if n.dryRun {
		n.logger.Infof("[dry-run] would email %v about %s", to, iss)
		return DryRun, nil
	}

	if err := n.mailer.Send(ctx, msg); err != nil {
		return 0, fmt.Errorf("failed to email %s: %w", iss, err)
	}
	n.logger.Infof("Emailed %d assignee(s) about %s", len(to), iss)
	return Sent, nil
}
