package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/breachwatch/internal/config"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "breachwatch",
		Short:         "breachwatch: breached-credential monitoring dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("breachwatch {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig turns the configuration panics into a command error.
func loadConfig() (cfg *config.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return config.Load(), nil
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.LogLevel, cfg.PrettyLog), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
