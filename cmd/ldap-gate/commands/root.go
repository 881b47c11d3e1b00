// Package commands implements the ldap-gate CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/ldap-gate/internal/config"
	"github.com/isometry/ldap-gate/internal/logging"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ldap-gate",
		Short: "Directory-backed sign-in and user self-service",
		Long: `ldap-gate keeps an in-memory view of a directory's users and groups,
issues bearer tokens to users whose password matches their directory entry,
and lets signed-in users update their own entry.

Configuration is read from an optional file, then LDAP_GATE_<SECTION>_<KEY>
environment variables, then flags.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "INFO", "log level (TRACE, DEBUG, INFO, WARN, ERROR, OFF)")

	cmd.AddCommand(
		newServeCommand(opts),
		newHashPasswordCommand(),
		newVerifyPasswordCommand(),
		newUserCommand(opts),
		newGroupCommand(opts),
	)
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the configuration, honouring the flags changed on cmd.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loggingContext returns ctx carrying the root logger configured by cfg.
func loggingContext(cmd *cobra.Command, cfg *config.Config) (context.Context, error) {
	return logging.NewContext(cmd.Context(), logging.Options{
		Level:  cfg.Logging.Level,
		Output: cmd.ErrOrStderr(),
	})
}
