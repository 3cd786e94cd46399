package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/rehearsal"
)

// newSoakCmd repeats the read-only rehearsal on cfg.RefreshInterval
// cadence for a bounded duration, to exercise session/auth/CAPTCHA
// stability against the live site without ever calling Elect.
func newSoakCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Repeat the rehearsal dry run for a fixed duration to check session stability",
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

			ctx, cancel := context.WithTimeout(context.Background(), duration)
			defer cancel()

			rounds, failures := 0, 0
			ticker := time.NewTicker(cfg.RefreshInterval)
			defer ticker.Stop()

			for {
				client := elective.New(cfg.StudentID, cfg.Password)
				summary, err := rehearsal.Run(ctx, client, chain, cls)
				rounds++
				if err != nil || summary.Failed(false) {
					failures++
					log.Warn().Int("round", rounds).Err(err).Msg("soak: round failed")
				} else {
					log.Info().Int("round", rounds).Dur("elapsed", summary.Duration).Msg("soak: round ok")
				}

				select {
				case <-ctx.Done():
					fmt.Printf("soak finished: %d rounds, %d failures over %s\n", rounds, failures, duration)
					if failures > 0 {
						os.Exit(exitConfigError)
					}
					os.Exit(exitOK)
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Minute, "how long to run the soak test")
	return cmd
}
