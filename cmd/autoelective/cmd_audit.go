package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/rehearsal"
)

// newAuditCmd re-checks the promoted fixture corpus for leaked
// identifiers without modifying anything, so it can run in CI against
// already-committed fixtures.
func newAuditCmd() *cobra.Command {
	var fixtureDir string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Scan committed fixtures for un-sanitized student or session identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(configPath); err != nil {
				return err
			}
			cfg := config.Load()
			cfg.Validate()

			if fixtureDir == "" {
				fixtureDir = filepath.Join(cfg.FixtureDir, "promoted")
			}

			entries, err := os.ReadDir(fixtureDir)
			if os.IsNotExist(err) {
				fmt.Printf("no fixtures at %s, nothing to audit\n", fixtureDir)
				os.Exit(exitOK)
				return nil
			}
			if err != nil {
				return err
			}

			leaked := 0
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				path := filepath.Join(fixtureDir, entry.Name())
				raw, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "skip %s: %v\n", entry.Name(), err)
					continue
				}
				resanitized := rehearsal.SanitizeBytes(raw, "text/html", cfg.StudentID)
				if len(resanitized) != len(raw) || string(resanitized) != string(raw) {
					fmt.Printf("LEAK: %s is not idempotent under sanitization\n", entry.Name())
					leaked++
					continue
				}
				if cfg.StudentID != "" && containsSubstring(raw, cfg.StudentID) {
					fmt.Printf("LEAK: %s contains the configured student id\n", entry.Name())
					leaked++
				}
			}

			fmt.Printf("audited %d fixture(s), %d leak(s) found\n", len(entries), leaked)
			if leaked > 0 {
				os.Exit(exitSanitizeLeak)
			}
			os.Exit(exitOK)
			return nil
		},
	}
	cmd.Flags().StringVar(&fixtureDir, "dir", "", "fixture directory to audit (default: <fixture_dir>/promoted)")
	return cmd
}
