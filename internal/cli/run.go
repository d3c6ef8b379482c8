package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/andywolf/statusnotify/internal/cloud/gcp"
	"github.com/andywolf/statusnotify/internal/config"
	"github.com/andywolf/statusnotify/internal/events"
	"github.com/andywolf/statusnotify/internal/github"
	"github.com/andywolf/statusnotify/internal/logging"
	"github.com/andywolf/statusnotify/internal/notify"
	"github.com/andywolf/statusnotify/internal/snapshot"
	"github.com/andywolf/statusnotify/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one polling pass",
	Long: `Run one polling pass: load the snapshot, fetch the current status of
every tracked issue, notify the assignees of issues that entered the target
status, and save the new snapshot.

Settings come from flags, STATUSNOTIFY_* environment variables, the GitHub
Action inputs (INPUT_*), and the config file, in that order.

Example:
  statusnotify run --repo acme/api --project 7
  statusnotify run --repo acme/api --project 7 --enterprise --owner-type user`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("repo", "", "GitHub repository (owner/name)")
	runCmd.Flags().String("owner", "", "Project owner login (default: repository owner)")
	runCmd.Flags().String("owner-type", "", "Project owner type (organization, user)")
	runCmd.Flags().String("api-url", "", "GitHub GraphQL endpoint")
	runCmd.Flags().Int("project", 0, "Project number")
	runCmd.Flags().String("status-field", "", "Name of the project status field")
	runCmd.Flags().String("target-status", "", "Status value that triggers a notification")
	runCmd.Flags().Bool("enterprise", false, "Read project items instead of repository issues")
	runCmd.Flags().String("type", "", "Notification type (comment, email)")
	runCmd.Flags().String("label", "", "Label marking notified issues")
	runCmd.Flags().Bool("dry-run", false, "Log notifications instead of sending them")
	runCmd.Flags().String("state", "", "Snapshot file path")
	runCmd.Flags().Bool("preserve-on-fetch-error", false, "Keep the previous snapshot when fetching fails")
	runCmd.Flags().String("events", "", "Append notification history to this JSONL file")
	runCmd.Flags().Bool("cloud-logging", false, "Also send logs to Google Cloud Logging")

	_ = viper.BindPFlag("github.repository", runCmd.Flags().Lookup("repo"))
	_ = viper.BindPFlag("github.owner", runCmd.Flags().Lookup("owner"))
	_ = viper.BindPFlag("github.owner_type", runCmd.Flags().Lookup("owner-type"))
	_ = viper.BindPFlag("github.api_url", runCmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("project.number", runCmd.Flags().Lookup("project"))
	_ = viper.BindPFlag("project.status_field", runCmd.Flags().Lookup("status-field"))
	_ = viper.BindPFlag("project.target_status", runCmd.Flags().Lookup("target-status"))
	_ = viper.BindPFlag("project.enterprise", runCmd.Flags().Lookup("enterprise"))
	_ = viper.BindPFlag("notification.type", runCmd.Flags().Lookup("type"))
	_ = viper.BindPFlag("notification.label", runCmd.Flags().Lookup("label"))
	_ = viper.BindPFlag("notification.dry_run", runCmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("state.path", runCmd.Flags().Lookup("state"))
	_ = viper.BindPFlag("state.preserve_on_fetch_error", runCmd.Flags().Lookup("preserve-on-fetch-error"))
	_ = viper.BindPFlag("state.events_path", runCmd.Flags().Lookup("events"))
	_ = viper.BindPFlag("logging.cloud", runCmd.Flags().Lookup("cloud-logging"))
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := setupSignalHandler(context.Background())
	defer cancel()

	runID := uuid.NewString()
	logger := logging.New(cmd.OutOrStdout(), "[statusnotify] ", logging.WithVerbose(cfg.Logging.Verbose))

	if cfg.Logging.Cloud {
		cloudLogger, err := gcp.NewCloudLogger(ctx, gcp.CloudLoggerConfig{
			ProjectID:  cfg.GCP.ProjectID,
			LogID:      cfg.Logging.LogID,
			RunID:      runID,
			Repository: cfg.GitHub.Repository,
		})
		if err != nil {
			logger.Warningf("Cloud Logging unavailable, logging locally only: %v", err)
		} else {
			defer func() { _ = cloudLogger.Close() }()
			logger = logging.New(cmd.OutOrStdout(), "[statusnotify] ",
				logging.WithVerbose(cfg.Logging.Verbose),
				logging.WithScrubber(logger.Scrubber()),
				logging.WithCloudSink(cloudLogger))
		}
	}

	logger.Infof("Starting run %s", runID)
	logger.Infof("Repository: %s", cfg.GitHub.Repository)
	logger.Infof("Project: %s/%d (enterprise=%v)", cfg.GitHub.Owner, cfg.Project.Number, cfg.Project.Enterprise)
	logger.Infof("Target status: %q on field %q", cfg.Project.TargetStatus, cfg.Project.StatusField)
	logger.Infof("Notification: %s (dry_run=%v)", cfg.Notification.Type, cfg.Notification.DryRun)

	var secrets gcp.SecretFetcher
	if cfg.NeedsSecretManager() {
		sm, err := gcp.NewSecretManagerClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to initialize Secret Manager: %w", err)
		}
		defer func() { _ = sm.Close() }()
		secrets = sm
	}

	ts, err := buildTokenSource(ctx, cfg, secrets, logger)
	if err != nil {
		return err
	}

	client := github.NewClient(ctx, cfg.GitHub.APIURL, ts, github.WithLogger(logger))

	source, err := buildSource(cfg, client)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(ctx, cfg, client, secrets, logger)
	if err != nil {
		return err
	}

	var extra []watcher.Option
	if cfg.State.EventsPath != "" {
		sink, err := events.NewFileSink(cfg.State.EventsPath)
		if err != nil {
			logger.Warningf("Notification history disabled: %v", err)
		} else {
			defer func() { _ = sink.Close() }()
			extra = append(extra, watcher.WithEventSink(sink))
		}
	}

	store := snapshot.NewFileStore(cfg.State.Path)
	w := watcher.New(source, notifier, store, logger, runID, watcher.Options{
		TargetStatus:         cfg.Project.TargetStatus,
		OpenOnly:             cfg.Project.OpenOnly,
		PreserveOnFetchError: cfg.State.PreserveOnFetchError,
		DryRun:               cfg.Notification.DryRun,
	}, extra...)

	sum, err := w.Run(ctx)
	watcher.LogSummary(logger, sum)
	if err != nil {
		logger.Errorf("Run %s aborted: %v", runID, err)
		return err
	}
	return nil
}

// setupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func setupSignalHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// buildTokenSource resolves the GitHub credential and registers it with the
// log scrubber.
func buildTokenSource(ctx context.Context, cfg *config.Config, secrets gcp.SecretFetcher, logger *logging.Logger) (oauth2.TokenSource, error) {
	switch cfg.AuthMode() {
	case config.AuthToken, config.AuthTokenSecret:
		token, err := gcp.ResolveSecret(ctx, secrets, cfg.GitHub.Token, cfg.GitHub.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve GitHub token: %w", err)
		}
		if token == "" {
			return nil, fmt.Errorf("%w: GitHub token secret %s is empty", config.ErrInvalid, cfg.GitHub.TokenSecret)
		}
		logger.Scrubber().AddSecret(token)
		return github.StaticTokenSource(token), nil

	case config.AuthApp:
		key, err := gcp.ResolveSecret(ctx, secrets, "", cfg.GitHub.PrivateKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve GitHub App private key: %w", err)
		}
		restURL, err := github.RESTBaseURL(cfg.GitHub.APIURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		manager, err := github.NewAppTokenManager(cfg.GitHub.AppID, cfg.GitHub.InstallationID, []byte(key),
			github.WithTokenExchanger(github.NewTokenExchanger(github.WithBaseURL(restURL))))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		token, err := manager.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain installation token: %w", err)
		}
		logger.Scrubber().AddSecret(token)
		logger.Infof("Authenticated as GitHub App %d (installation %d)", cfg.GitHub.AppID, cfg.GitHub.InstallationID)
		return manager.TokenSource(ctx), nil

	default:
		return nil, fmt.Errorf("%w: no GitHub credentials configured", config.ErrInvalid)
	}
}

// buildSource picks the issue source for the configured mode.
func buildSource(cfg *config.Config, client *github.Client) (watcher.Source, error) {
	if cfg.Project.Enterprise {
		ownerType, err := github.ParseOwnerType(cfg.GitHub.OwnerType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		items, err := github.NewProjectItems(client, ownerType, cfg.GitHub.Owner, cfg.Project.Number, cfg.Project.StatusField)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		return items, nil
	}

	issues, err := github.NewRepositoryIssues(client, cfg.GitHub.Repository, cfg.Project.Number, cfg.Project.StatusField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return issues, nil
}

// notifyAPI is the GitHub surface the notifiers need.
type notifyAPI interface {
	notify.CommentAPI
	notify.LabelAPI
}

// buildNotifier assembles the delivery chain for the configured type.
func buildNotifier(ctx context.Context, cfg *config.Config, api notifyAPI, secrets gcp.SecretFetcher, logger *logging.Logger) (notify.Notifier, error) {
	kind, err := notify.ParseType(cfg.Notification.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	var n notify.Notifier
	switch kind {
	case notify.TypeEmail:
		password, err := gcp.ResolveSecret(ctx, secrets, cfg.SMTP.Password, cfg.SMTP.PasswordSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve SMTP password: %w", err)
		}
		logger.Scrubber().AddSecret(password)

		mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: password,
			TLS:      cfg.SMTP.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		n = notify.NewEmailNotifier(mailer, logger, cfg.SMTP.From, cfg.Project.TargetStatus,
			cfg.Notification.Message, cfg.Notification.DryRun)
	default:
		n = notify.NewCommentNotifier(api, logger,
			notify.WithMessage(cfg.Notification.Message),
			notify.WithCommentDedup(cfg.Notification.DedupComments),
			notify.WithCommentDryRun(cfg.Notification.DryRun))
	}

	return notify.NewLabelGuard(n, api, cfg.Notification.Label, logger), nil
}
