package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/breachwatch/internal/app"
)

func newImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a breach feed file once and print the result",
		Args:  cobra.ExactArgs(1),
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

			res, err := core.Importer.Import(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Feed format: csv|jsonl (default: file extension)")
	return cmd
}
