package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/servicesync/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			masked := cfg.String()
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"config": masked}, func(w io.Writer) {
				fmt.Fprintln(w, masked)
			})
		},
	}
}
