package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wibisana/lakon/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader(cfgFile).Load()
		if err != nil {
			return err
		}
		fmt.Printf("Configuration OK (optimizer tick %s, %d forbidden keywords)\n",
			cfg.Optimizer.Tick, len(cfg.Rules.ForbiddenKeywords))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
