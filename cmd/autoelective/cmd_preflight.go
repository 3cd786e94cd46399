package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/preflight"
)

func newPreflightCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Statically validate configuration without starting the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(configPath); err != nil {
				return err
			}
			cfg := config.Load()
			cfg.Validate()

			issues := preflight.Run(cfg)
			hasWarn := false
			for _, issue := range issues {
				fmt.Fprintln(os.Stdout, issue.String())
				if issue.Level == preflight.LevelWarn {
					hasWarn = true
				}
			}
			if preflight.HasErrors(issues) {
				os.Exit(exitConfigError)
			}
			if strict && hasWarn {
				os.Exit(exitStrictWarn)
			}
			os.Exit(exitOK)
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 1 if any warning was raised")
	return cmd
}
