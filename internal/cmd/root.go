// Package cmd is the hackseeker command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
)

// Set with -ldflags "-X .../internal/cmd.Version=..." in release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var tracer = otel.Tracer("github.com/CogitoSoftwareOrg/hackseeker/internal/cmd")

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool

	flushTelemetry otel.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "hackseeker",
	Short: "Pain discovery and validation assistant",
	Long: `Hackseeker helps founders find and validate customer pains.

A discovery chat turns a founder's story into pain drafts. A validation
chat checks a draft against researched artifacts. Each draft can be
rendered as a report or a landing page. Answers draw on long-term memory
kept under token budgets, and every finalized answer costs one credit.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		configureLogger(cmd.ErrOrStderr())
		shutdown, err := otel.Setup("hackseeker", resolvedVersion(), telemetryEnabled())
		if err != nil {
			return fmt.Errorf("starting telemetry: %w", err)
		}
		flushTelemetry = shutdown
		return nil
	},
}

func init() {
	cobra.OnInitialize(readConfigFile)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to hackseeker.config.yaml (searched in . and ~/.hackseeker when unset)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logs and telemetry")
	flags.StringVar(&logLevel, "log-level", "info", "minimum level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "console", "console for humans, json for collectors")
	flags.BoolVar(&otelFlag, "otel", false, "print traces and metrics to stdout")
}

// Execute runs the command tree, then flushes pending telemetry.
func Execute() error {
	err := rootCmd.Execute()
	if flushTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = flushTelemetry(ctx)
	}
	return err
}

// configureLogger points the global logger at w. Stdout is left to
// answers and listings.
func configureLogger(w io.Writer) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if logFormat != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func telemetryEnabled() bool {
	return otelFlag || verbose || os.Getenv("HACKSEEKER_OTEL_ENABLED") == "true"
}

// readConfigFile loads the optional yaml file. A missing file is fine; env
// vars and defaults still apply.
func readConfigFile() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hackseeker.config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".hackseeker"))
		}
	}
	_ = viper.ReadInConfig()
}

// resolvedVersion prefers the module version stamped by go install over
// the "dev" placeholder.
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
