package gcp

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

func (s Severity) toLogging() logging.Severity {
	switch s {
	case SeverityDebug:
		return logging.Debug
	case SeverityInfo:
		return logging.Info
	case SeverityWarning:
		return logging.Warning
	case SeverityError:
		return logging.Error
	default:
		return logging.Default
	}
}

// DefaultLogID is the Cloud Logging log name used when none is configured.
const DefaultLogID = "statusnotify"

// LogWriter is the subset of *logging.Logger used by CloudLogger. Tests
// substitute an in-memory implementation.
type LogWriter interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudLoggerConfig configures a CloudLogger.
type CloudLoggerConfig struct {
	ProjectID  string // resolved from the environment or metadata server when empty
	LogID      string
	RunID      string
	Repository string
}

// CloudLogger sends structured entries to Google Cloud Logging. Every entry
// carries the run ID and repository as labels so a single run can be
// filtered in the console.
type CloudLogger struct {
	client *logging.Client
	writer LogWriter
	labels map[string]string
	mu     sync.Mutex
	closed bool
}

// NewCloudLogger creates a Cloud Logging client for the configured project.
func NewCloudLogger(ctx context.Context, cfg CloudLoggerConfig, opts ...option.ClientOption) (*CloudLogger, error) {
	projectID := cfg.ProjectID
	if projectID == "" {
		var err error
		projectID, err = getProjectID()
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}

	logID := cfg.LogID
	if logID == "" {
		logID = DefaultLogID
	}

	labels := baseLabels(cfg.RunID, cfg.Repository)
	cl := &CloudLogger{
		client: client,
		writer: client.Logger(logID, logging.CommonLabels(labels)),
		labels: labels,
	}
	return cl, nil
}

// NewCloudLoggerWithWriter creates a CloudLogger around an existing writer.
// Common labels are attached to each entry since the writer may not add them.
func NewCloudLoggerWithWriter(writer LogWriter, runID, repository string) *CloudLogger {
	return &CloudLogger{
		writer: writer,
		labels: baseLabels(runID, repository),
	}
}

func baseLabels(runID, repository string) map[string]string {
	labels := map[string]string{"component": "statusnotify"}
	if runID != "" {
		labels["run_id"] = runID
	}
	if repository != "" {
		labels["repository"] = repository
	}
	return labels
}

// Log writes an entry with the given severity. Extra labels are merged over
// the logger's common labels.
func (cl *CloudLogger) Log(severity Severity, message string, extraLabels map[string]string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	labels := make(map[string]string, len(cl.labels)+len(extraLabels))
	for k, v := range cl.labels {
		labels[k] = v
	}
	for k, v := range extraLabels {
		labels[k] = v
	}

	cl.writer.Log(logging.Entry{
		Severity: severity.toLogging(),
		Payload:  message,
		Labels:   labels,
	})
}

// Flush sends buffered entries.
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	return cl.writer.Flush()
}

// Close flushes remaining entries and releases the client.
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true

	if err := cl.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush logs: %w", err)
	}
	if cl.client != nil {
		return cl.client.Close()
	}
	return nil
}
