package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	Long: `Loads defaults, the config file, the environment and the flags, validates
the result, and prints it as YAML with secrets masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		cfg.Gateway.APIKey = mask(cfg.Gateway.APIKey)
		cfg.Redis.Password = mask(cfg.Redis.Password)

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		fmt.Fprintln(cmd.ErrOrStderr(), "Configuration is valid.")
		return nil
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
