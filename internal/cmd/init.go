package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/circletel/circletel/internal/wizard"
	"github.com/circletel/circletel/pkg/cli"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard to generate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			defaults, _ := cmd.Flags().GetBool("defaults")
			force, _ := cmd.Flags().GetBool("force")

			target := output
			if target == "" {
				target = wizard.DefaultOutput
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}

			w := wizard.New(&cli.Prompter{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
			if defaults {
				return w.RunDefaults(target)
			}
			return w.Run(target)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: ./circletel.json)")
	cmd.Flags().Bool("defaults", false, "generate config non-interactively using env vars and generated secrets")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}
