package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/statusnotify/internal/config"
	"github.com/andywolf/statusnotify/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "statusnotify",
	Short: "statusnotify - notify assignees when an issue reaches a project status",
	Long: `statusnotify polls a GitHub project for issues whose status field moved
into a target value (by default "QA Testing") and notifies the assignees,
either with an issue comment or by email. Each transition is notified once;
the last seen status of every issue is kept in a small JSON snapshot.

Run it on a schedule, for example from a GitHub Actions cron workflow.

Example:
  statusnotify run --repo acme/api --project 7
  statusnotify run --repo acme/api --project 7 --type email --dry-run`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// IsConfigError reports whether err came from invalid configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalid)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .statusnotify.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	config.SetDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".statusnotify")
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		os.Exit(1)
	}
}
