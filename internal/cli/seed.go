package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/breachwatch/internal/app"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Create the companies, watchlists and users of a YAML seed file",
		Long: "Create the companies, watchlists and users of a YAML seed file.\n" +
			"Existing rows are skipped, so the command can be re-run safely.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			core, err := app.OpenCore(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			defer core.Close()

			sum, err := core.Seed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
}
