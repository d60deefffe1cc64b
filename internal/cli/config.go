package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/travelrelay/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigCheckCommand(rootOpts))
	return cmd
}

// configReport is the JSON result of config check.
type configReport struct {
	Valid    bool          `json:"valid"`
	HasToken bool          `json:"has_token"`
	Config   config.Config `json:"config"`
}

func newConfigCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the effective settings",
		Long: `Load the configuration file, .env and environment, validate them and
print the effective settings with defaults applied. The bot token is never
printed.

Example:
  travelrelay config check --config travelrelay.yml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCheck(rootOpts, cmd)
		},
	}
}

func runConfigCheck(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.output(cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = out.Error(CodeCommand, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	text, err := yaml.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to print configuration", err)
	}
	summary := "Configuration OK\n"
	if cfg.Chat.Token == "" {
		summary += "warning: " + config.EnvBotToken + " is not set\n"
	}
	return out.Success(summary+"---\n"+string(text), configReport{
		Valid:    true,
		HasToken: cfg.Chat.Token != "",
		Config:   cfg,
	})
}
