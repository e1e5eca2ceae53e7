package cmd

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/oors/config"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("oors v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type options struct {
	configFiles     []string
	envPrefix       string
	logLevel        string
	watch           bool
	shutdownTimeout time.Duration
}

// NewRootCommand creates the root command for the oors host
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "oors",
		Short: "oors - run a set of modules from configuration",
		Long: `oors registers the built-in modules (router, scheduler, eventlogger)
with a module manager, configures them from YAML, TOML or JSON files and
OORS_* environment variables, and bootstraps them.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringSliceVarP(&opts.configFiles, "config", "c", nil, "configuration files, later files override earlier ones")
	flags.StringVar(&opts.envPrefix, "env-prefix", config.DefaultEnvPrefix, "prefix of environment overrides, empty disables them")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

func (o *options) loader() *config.Loader {
	return config.NewLoader(o.configFiles, config.WithEnvPrefix(o.envPrefix))
}
