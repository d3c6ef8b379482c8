package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalid marks configuration errors. The CLI exits non-zero on them.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of the native environment variables, for example
// STATUSNOTIFY_PROJECT_NUMBER.
const EnvPrefix = "STATUSNOTIFY"

// Config represents the full statusnotify configuration
type Config struct {
	GitHub       GitHubConfig       `mapstructure:"github"`
	Project      ProjectConfig      `mapstructure:"project"`
	Notification NotificationConfig `mapstructure:"notification"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	State        StateConfig        `mapstructure:"state"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	GCP          GCPConfig          `mapstructure:"gcp"`
}

// GitHubConfig contains the repository and credential settings
type GitHubConfig struct {
	Owner      string `mapstructure:"owner"`
	OwnerType  string `mapstructure:"owner_type"`
	Repository string `mapstructure:"repository"` // owner/name
	APIURL     string `mapstructure:"api_url"`    // GraphQL endpoint

	Token       string `mapstructure:"token"`
	TokenSecret string `mapstructure:"token_secret"`

	AppID            int64  `mapstructure:"app_id"`
	InstallationID   int64  `mapstructure:"installation_id"`
	PrivateKeySecret string `mapstructure:"private_key_secret"`
}

// ProjectConfig selects the project and the tracked status
type ProjectConfig struct {
	Number       int    `mapstructure:"number"`
	StatusField  string `mapstructure:"status_field"`
	TargetStatus string `mapstructure:"target_status"`
	Enterprise   bool   `mapstructure:"enterprise"` // list project items instead of repository issues
	OpenOnly     bool   `mapstructure:"open_only"`
}

// NotificationConfig controls delivery
type NotificationConfig struct {
	Type          string `mapstructure:"type"`
	DryRun        bool   `mapstructure:"dry_run"`
	Message       string `mapstructure:"message"`
	DedupComments bool   `mapstructure:"dedup_comments"`
	Label         string `mapstructure:"label"`
}

// SMTPConfig contains the email session settings
type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	PasswordSecret string `mapstructure:"password_secret"`
	From           string `mapstructure:"from"`
	TLS            string `mapstructure:"tls"`
}

// StateConfig locates the snapshot file
type StateConfig struct {
	Path                 string `mapstructure:"path"`
	PreserveOnFetchError bool   `mapstructure:"preserve_on_fetch_error"`
	// EventsPath is an optional JSONL history of notification attempts.
	EventsPath           string `mapstructure:"events_path"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Verbose bool   `mapstructure:"verbose"`
	Cloud   bool   `mapstructure:"cloud"`
	LogID   string `mapstructure:"log_id"`
}

// GCPConfig is shared by Secret Manager and Cloud Logging
type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// Defaults for settings that have one.
const (
	DefaultOwnerType    = "organization"
	DefaultAPIURL       = "https://api.github.com/graphql"
	DefaultStatusField  = "Status"
	DefaultTargetStatus = "QA Testing"
	DefaultType         = "comment"
	DefaultMessage      = "This issue is ready for testing. Please proceed accordingly."
	DefaultSMTPPort     = 587
	DefaultSMTPTLS      = "mandatory"
	DefaultStatePath    = ".statusnotify/snapshot.json"
	DefaultLogID        = "statusnotify"
)

// envAliases are the extra environment variables accepted for each key, in
// precedence order after STATUSNOTIFY_<KEY>. They match the GitHub Action
// inputs.
var envAliases = map[string][]string{
	"github.owner":              {"GITHUB_REPOSITORY_OWNER"},
	"github.owner_type":         {"INPUT_REPOSITORY_OWNER_TYPE"},
	"github.repository":         {"GITHUB_REPOSITORY"},
	"github.api_url":            {"GITHUB_GRAPHQL_URL"},
	"github.token":              {"INPUT_GH_TOKEN", "GITHUB_TOKEN"},
	"github.token_secret":       nil,
	"github.app_id":             nil,
	"github.installation_id":    nil,
	"github.private_key_secret": nil,

	"project.number":        {"INPUT_PROJECT_NUMBER"},
	"project.status_field":  {"INPUT_STATUS_FIELD_NAME"},
	"project.target_status": {"INPUT_TARGET_STATUS"},
	"project.enterprise":    {"INPUT_ENTERPRISE_GITHUB"},
	"project.open_only":     nil,

	"notification.type":           {"INPUT_NOTIFICATION_TYPE"},
	"notification.dry_run":        {"INPUT_DRY_RUN"},
	"notification.message":        nil,
	"notification.dedup_comments": nil,
	"notification.label":          {"INPUT_NOTIFY_LABEL"},

	"smtp.host":            {"INPUT_SMTP_HOST"},
	"smtp.port":            {"INPUT_SMTP_PORT"},
	"smtp.username":        {"INPUT_SMTP_USERNAME"},
	"smtp.password":        {"INPUT_SMTP_PASSWORD"},
	"smtp.password_secret": nil,
	"smtp.from":            {"INPUT_SMTP_FROM"},
	"smtp.tls":             {"INPUT_SMTP_TLS"},

	"state.path":                    {"INPUT_STATE_PATH"},
	"state.preserve_on_fetch_error": nil,
	"state.events_path":             {"INPUT_EVENTS_PATH"},

	"logging.verbose": nil,
	"logging.cloud":   nil,
	"logging.log_id":  nil,

	"gcp.project_id": {"GOOGLE_CLOUD_PROJECT"},
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("github.owner_type", DefaultOwnerType)
	v.SetDefault("github.api_url", DefaultAPIURL)
	v.SetDefault("project.status_field", DefaultStatusField)
	v.SetDefault("project.target_status", DefaultTargetStatus)
	v.SetDefault("project.enterprise", false)
	v.SetDefault("project.open_only", true)
	v.SetDefault("notification.type", DefaultType)
	v.SetDefault("notification.dry_run", false)
	v.SetDefault("notification.message", DefaultMessage)
	v.SetDefault("notification.dedup_comments", true)
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.tls", DefaultSMTPTLS)
	v.SetDefault("state.path", DefaultStatePath)
	v.SetDefault("state.preserve_on_fetch_error", false)
	v.SetDefault("logging.log_id", DefaultLogID)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{EnvName(key)}, aliases...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// EnvName returns the native environment variable for a key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load loads configuration from v, which must already have its config file
// read and flags bound.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ErrInvalid, err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills settings derived from other settings
func applyDefaults(cfg *Config) {
	cfg.GitHub.Repository = strings.TrimSpace(cfg.GitHub.Repository)
	if cfg.GitHub.Owner == "" {
		if owner, _, ok := strings.Cut(cfg.GitHub.Repository, "/"); ok {
			cfg.GitHub.Owner = owner
		}
	}

	cfg.GitHub.OwnerType = strings.ToLower(cfg.GitHub.OwnerType)
	cfg.Notification.Type = strings.ToLower(cfg.Notification.Type)
	cfg.SMTP.TLS = strings.ToLower(cfg.SMTP.TLS)

	if cfg.Notification.Message == "" {
		cfg.Notification.Message = DefaultMessage
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = DefaultSMTPPort
	}
	if cfg.State.Path == "" {
		cfg.State.Path = DefaultStatePath
	}
	if cfg.Logging.LogID == "" {
		cfg.Logging.LogID = DefaultLogID
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	repo := c.GitHub.Repository
	if repo == "" {
		return invalid("github.repository is required")
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return invalid("github.repository %q must have the form owner/name", repo)
	}

	if c.GitHub.Owner == "" {
		return invalid("github.owner is required")
	}

	switch c.GitHub.OwnerType {
	case "organization", "user":
	default:
		return invalid("invalid github.owner_type: %s (must be organization or user)", c.GitHub.OwnerType)
	}

	if c.Project.Number <= 0 {
		return invalid("project.number must be a positive integer")
	}
	if strings.TrimSpace(c.Project.StatusField) == "" {
		return invalid("project.status_field is required")
	}
	if strings.TrimSpace(c.Project.TargetStatus) == "" {
		return invalid("project.target_status is required")
	}

	switch c.Notification.Type {
	case "comment":
	case "email":
		if c.SMTP.Host == "" {
			return invalid("smtp.host is required for email notifications")
		}
		if c.SMTP.From == "" {
			return invalid("smtp.from is required for email notifications")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return invalid("invalid smtp.port: %d", c.SMTP.Port)
		}
		if c.SMTP.Username == "" {
			return invalid("smtp.username is required for email notifications")
		}
		if c.SMTP.Password == "" && c.SMTP.PasswordSecret == "" {
			return invalid("smtp.password or smtp.password_secret is required for email notifications")
		}
	default:
		return invalid("invalid notification.type: %s (must be comment or email)", c.Notification.Type)
	}

	switch c.SMTP.TLS {
	case "mandatory", "opportunistic", "none":
	default:
		return invalid("invalid smtp.tls: %s (must be mandatory, opportunistic or none)", c.SMTP.TLS)
	}

	if c.AuthMode() == AuthNone {
		if c.GitHub.AppID != 0 || c.GitHub.InstallationID != 0 || c.GitHub.PrivateKeySecret != "" {
			return invalid("GitHub App auth needs github.app_id, github.installation_id and github.private_key_secret")
		}
		return invalid("no GitHub credentials: set github.token, github.token_secret or GitHub App credentials")
	}

	return nil
}

// AuthMode describes where the GitHub credential comes from.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthToken
	AuthTokenSecret
	AuthApp
)

// AuthMode picks the credential source. A literal token wins over a secret,
// which wins over App credentials.
func (c *Config) AuthMode() AuthMode {
	switch {
	case c.GitHub.Token != "":
		return AuthToken
	case c.GitHub.TokenSecret != "":
		return AuthTokenSecret
	case c.GitHub.AppID > 0 && c.GitHub.InstallationID > 0 && c.GitHub.PrivateKeySecret != "":
		return AuthApp
	default:
		return AuthNone
	}
}

// NeedsSecretManager reports whether any setting is read from Secret Manager.
func (c *Config) NeedsSecretManager() bool {
	switch c.AuthMode() {
	case AuthTokenSecret, AuthApp:
		return true
	}
	return c.Notification.Type == "email" && c.SMTP.Password == "" && c.SMTP.PasswordSecret != ""
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
