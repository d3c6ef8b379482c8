package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/statusnotify/internal/cli/wizard"
	"github.com/andywolf/statusnotify/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize project configuration",
	Long: `Initialize statusnotify configuration for the current directory.

This creates a .statusnotify.yaml file with sensible defaults that you can customize.

Example:
  statusnotify init
  statusnotify init --interactive
  statusnotify init --repo acme/api --project 7 --type email`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)
	addInitFlags(initCmd)
}

func addInitFlags(cmd *cobra.Command) {
	cmd.Flags().String("repo", "", "GitHub repository (owner/name)")
	cmd.Flags().Int("project", 0, "Project number")
	cmd.Flags().String("type", config.DefaultType, "Notification type (comment, email)")
	cmd.Flags().String("output", ".statusnotify.yaml", "Path of the config file to write")
	cmd.Flags().Bool("force", false, "Overwrite existing config")
	cmd.Flags().BoolP("interactive", "i", false, "Prompt for the settings")
}

type starterConfig struct {
	GitHub struct {
		Repository  string `yaml:"repository"`
		OwnerType   string `yaml:"owner_type"`
		APIURL      string `yaml:"api_url"`
		TokenSecret string `yaml:"token_secret"`
	} `yaml:"github"`
	Project struct {
		Number       int    `yaml:"number"`
		StatusField  string `yaml:"status_field"`
		TargetStatus string `yaml:"target_status"`
		Enterprise   bool   `yaml:"enterprise"`
		OpenOnly     bool   `yaml:"open_only"`
	} `yaml:"project"`
	Notification struct {
		Type          string `yaml:"type"`
		DryRun        bool   `yaml:"dry_run"`
		DedupComments bool   `yaml:"dedup_comments"`
		Label         string `yaml:"label"`
	} `yaml:"notification"`
	SMTP *starterSMTP `yaml:"smtp,omitempty"`
	State struct {
		Path                 string `yaml:"path"`
		PreserveOnFetchError bool   `yaml:"preserve_on_fetch_error"`
	} `yaml:"state"`
}

type starterSMTP struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	PasswordSecret string `yaml:"password_secret"`
	From           string `yaml:"from"`
	TLS            string `yaml:"tls"`
}

var sectionComments = map[string]string{
	"github":       "# Repository to watch. The token is read from STATUSNOTIFY_GITHUB_TOKEN,\n# INPUT_GH_TOKEN or GITHUB_TOKEN, or from the Secret Manager secret below.",
	"project":      "# Project whose status field is tracked.",
	"notification": "# comment or email. A non-empty label marks notified issues and skips them later.",
	"smtp":         "# SMTP session used for email notifications.",
	"state":        "# Snapshot of the last seen status of every issue.",
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("output")
	configPath = filepath.Clean(configPath)

	force, _ := cmd.Flags().GetBool("force")
	interactive, _ := cmd.Flags().GetBool("interactive")
	if _, err := os.Stat(configPath); err == nil && !force {
		if !interactive {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		ok, err := wizard.ConfirmOverwrite(configPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Keeping existing config")
			return nil
		}
	}

	cfg := starterConfig{}
	cfg.GitHub.Repository, _ = cmd.Flags().GetString("repo")
	cfg.Project.Number, _ = cmd.Flags().GetInt("project")
	cfg.Notification.Type, _ = cmd.Flags().GetString("type")
	cfg.Project.TargetStatus = config.DefaultTargetStatus

	if interactive {
		settings := wizard.Settings{
			Repository:    cfg.GitHub.Repository,
			ProjectNumber: cfg.Project.Number,
			TargetStatus:  cfg.Project.TargetStatus,
			Type:          cfg.Notification.Type,
		}
		if err := wizard.PromptSettings(&settings); err != nil {
			return err
		}
		cfg.GitHub.Repository = settings.Repository
		cfg.Project.Number = settings.ProjectNumber
		cfg.Project.TargetStatus = settings.TargetStatus
		cfg.Notification.Type = settings.Type
		cfg.Notification.Label = settings.Label
	}

	if cfg.GitHub.Repository == "" {
		cfg.GitHub.Repository = "OWNER/REPO"
	}
	cfg.GitHub.OwnerType = config.DefaultOwnerType
	cfg.GitHub.APIURL = config.DefaultAPIURL
	cfg.Project.StatusField = config.DefaultStatusField
	cfg.Project.OpenOnly = true
	cfg.Notification.DedupComments = true
	cfg.State.Path = config.DefaultStatePath

	kind, err := notifyTypeOrDefault(cfg.Notification.Type)
	if err != nil {
		return err
	}
	cfg.Notification.Type = kind
	if cfg.Notification.Type == "email" {
		cfg.SMTP = &starterSMTP{
			Host:           "smtp.example.com",
			Port:           config.DefaultSMTPPort,
			Username:       "qa-bot",
			PasswordSecret: "smtp-password",
			From:           "qa-bot@example.com",
			TLS:            config.DefaultSMTPTLS,
		}
	}

	data, err := marshalStarterConfig(&cfg)
	if err != nil {
		return err
	}

	header := "# statusnotify configuration\n# Every key can be overridden with STATUSNOTIFY_<SECTION>_<KEY>.\n\n"

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n\n", configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Set the repository and project number")
	fmt.Fprintln(out, "  2. Provide a GitHub token (or GitHub App credentials)")
	fmt.Fprintln(out, "  3. Run 'statusnotify run --dry-run' to preview notifications")

	return nil
}

func notifyTypeOrDefault(t string) (string, error) {
	switch t {
	case "":
		return config.DefaultType, nil
	case "comment", "email":
		return t, nil
	default:
		return "", fmt.Errorf("invalid notification type: %s (must be comment or email)", t)
	}
}

// marshalStarterConfig encodes cfg with a comment above each section.
func marshalStarterConfig(cfg *starterConfig) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(root.Content); i += 2 {
			if comment, ok := sectionComments[root.Content[i].Value]; ok {
				root.Content[i].HeadComment = comment
			}
		}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
