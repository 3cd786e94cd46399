package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/rehearsal"
)

func newRehearsalCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "rehearsal",
		Short: "Perform a read-only dry run: login, fetch listing, draw and validate a captcha",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(configPath); err != nil {
				return err
			}
			cfg := config.Load()
			cfg.Validate()

			chain, _, err := buildCaptchaChain(cfg)
			if err != nil {
				return err
			}
			cls := classifier.New(nil, classifier.NewDumper(cfg.FixtureDir))
			client := elective.New(cfg.StudentID, cfg.Password)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			summary, err := rehearsal.Run(ctx, client, chain, cls)
			if err != nil {
				return err
			}
			for _, step := range summary.Steps {
				status := "ok"
				if !step.Succeeded {
					status = "FAILED(" + step.Kind + ")"
				}
				fmt.Printf("%-18s %-24s %s\n", step.Name, status, step.Detail)
			}
			fmt.Printf("rehearsal finished in %s\n", summary.Duration)

			if summary.Failed(strict) {
				os.Exit(exitConfigError)
			}
			os.Exit(exitOK)
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat strict-only findings (e.g. not-in-operation) as failures too")
	return cmd
}
