// Package main provides the entry point for the autoelective agent.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pku-elective/autoelective/pkg/version"
)

// Exit codes, per the documented CLI contract.
const (
	exitOK            = 0
	exitStrictWarn    = 1
	exitConfigError   = 2
	exitSanitizeLeak  = 3
)

var (
	configPath  string
	withMonitor bool
)

func main() {
	root := &cobra.Command{
		Use:     "autoelective",
		Short:   "Automated supplementary-course election agent",
		Version: version.Full(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Getenv("AUTOELECTIVE_LOG_LEVEL"))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an env file to load before reading AUTOELECTIVE_* variables")
	root.PersistentFlags().BoolVar(&withMonitor, "with-monitor", false, "accepted but has no effect: no monitor is served")

	root.AddCommand(
		newRunCmd(),
		newPreflightCmd(),
		newRehearsalCmd(),
		newPromoteFixturesCmd(),
		newSoakCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(exitConfigError)
	}
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
  __ _ _   _| |_ ___   ___| | ___  ___| |_(_)_   _____
 / _' | | | | __/ _ \ / _ \ |/ _ \/ __| __| \ \ / / _ \
| (_| | |_| | || (_) |  __/ |  __/ (__| |_| |\ V /  __/
 \__,_|\__,_|\__\___/ \___|_|\___|\___|\__|_| \_/ \___|
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("starting autoelective")
}

// loadConfigFile applies key=value lines from path into the process
// environment before config.Load() reads AUTOELECTIVE_* variables, so
// --config behaves like the INI override the CLI contract documents.
func loadConfigFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range splitLines(string(data)) {
		line = trimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := cutByte(line, '=')
		if !ok {
			continue
		}
		key, value = trimSpace(key), trimSpace(value)
		if key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
	return nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func cutByte(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
