package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/rehearsal"
)

// newPromoteFixturesCmd sanitizes captured response dumps (see
// classifier.Dumper) into the checked-in fixture corpus, scrubbing the
// operator's student ID and any session identifiers before they ever
// leave the runtime's fixture directory.
func newPromoteFixturesCmd() *cobra.Command {
	var destDir string
	cmd := &cobra.Command{
		Use:   "promote-fixtures",
		Short: "Sanitize and copy captured response dumps into the fixture corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(configPath); err != nil {
				return err
			}
			cfg := config.Load()
			cfg.Validate()

			if destDir == "" {
				destDir = filepath.Join(cfg.FixtureDir, "promoted")
			}
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return err
			}

			entries, err := os.ReadDir(cfg.FixtureDir)
			if err != nil {
				return err
			}

			promoted, leaked := 0, 0
			for _, entry := range entries {
				if entry.IsDir() || filepath.Ext(entry.Name()) != ".html" {
					continue
				}
				src := filepath.Join(cfg.FixtureDir, entry.Name())
				raw, err := os.ReadFile(src)
				if err != nil {
					fmt.Fprintf(os.Stderr, "skip %s: %v\n", entry.Name(), err)
					continue
				}
				clean := rehearsal.SanitizeBytes(raw, "text/html", cfg.StudentID)
				if cfg.StudentID != "" && containsSubstring(clean, cfg.StudentID) {
					fmt.Fprintf(os.Stderr, "LEAK after sanitize: %s still contains student id\n", entry.Name())
					leaked++
					continue
				}
				dest := filepath.Join(destDir, entry.Name())
				if err := os.WriteFile(dest, clean, 0o644); err != nil {
					fmt.Fprintf(os.Stderr, "write %s: %v\n", dest, err)
					continue
				}
				promoted++
			}

			fmt.Printf("promoted %d fixture(s) to %s, %d leaked and skipped\n", promoted, destDir, leaked)
			if leaked > 0 {
				os.Exit(exitSanitizeLeak)
			}
			os.Exit(exitOK)
			return nil
		},
	}
	cmd.Flags().StringVar(&destDir, "dest", "", "destination directory (default: <fixture_dir>/promoted)")
	return cmd
}

func containsSubstring(haystack []byte, needle string) bool {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return false
	}
	for i := 0; i+m <= n; i++ {
		if string(haystack[i:i+m]) == needle {
			return true
		}
	}
	return false
}
