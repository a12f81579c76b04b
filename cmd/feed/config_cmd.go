package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/okx-feed/internal/config"
)

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the feed configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the config, apply defaults and validate it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config OK: instance %s, %d subscriptions, database enabled: %v\n",
			cfg.Instance.ID, len(cfg.Subscriptions), cfg.Database.Enabled)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with defaults applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithDefaults(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.Timescale.Password != "" {
			cfg.Database.Timescale.Password = "********"
		}
		out, err := config.Encode(cfg, configPath)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
