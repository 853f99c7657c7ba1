package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect hackseeker configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		dirState := "(missing)"
		if dirExists(cfg.DataDir) {
			dirState = "(exists)"
		}
		fmt.Fprintf(out, "Data directory:   %s %s\n", cfg.DataDir, dirState)
		fmt.Fprintf(out, "  Chat DB:        %s\n", cfg.ChatDBPath())
		fmt.Fprintf(out, "  Pain DB:        %s\n", cfg.PainDBPath())
		fmt.Fprintf(out, "  Memory DB:      %s\n", cfg.MemoryDBPath())
		fmt.Fprintf(out, "  Billing DB:     %s\n", cfg.BillingDBPath())
		fmt.Fprintf(out, "LLM endpoint:     %s\n", cfg.LLMBaseURL)
		fmt.Fprintf(out, "LLM model:        %s (fast: %s)\n", cfg.LLMModel, cfg.LLMFastModel)
		fmt.Fprintf(out, "LLM key:          %s\n", maskSecret(cfg.LLMAPIKey))
		if cfg.SearchURL != "" {
			fmt.Fprintf(out, "Web search:       %s (%d pages per query, key %s)\n", cfg.SearchURL, cfg.SearchLimit, maskSecret(cfg.SearchAPIKey))
		} else {
			fmt.Fprintf(out, "Web search:       (not set, artifact research off)\n")
		}
		fmt.Fprintf(out, "Context tokens:   %d (history %d, artifact %d, tool memory %d)\n",
			cfg.ContextTotalTokens, cfg.HistoryTokens, cfg.ArtifactTokens, cfg.ToolMemoryTokens)
		fmt.Fprintf(out, "Recent window:    %s\n", cfg.RecentWindow)
		fmt.Fprintf(out, "Credits:          %d initial, %d per answer\n", cfg.InitialCredits, cfg.ChargeAmount)
		fmt.Fprintf(out, "Rate limit:       %d req/s per user\n", cfg.RateLimitRPS)
		fmt.Fprintf(out, "Memory retention: %d days (%s)\n", cfg.MemoryRetentionDays, cfg.RetentionSchedule)
		fmt.Fprintf(out, "API users:        %s\n", apiUsers(cfg.APIKeys))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// maskSecret keeps the last four characters of s.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func apiUsers(keys map[string]string) string {
	if len(keys) == 0 {
		return "(none)"
	}
	users := make([]string, 0, len(keys))
	for _, u := range keys {
		users = append(users, u)
	}
	sort.Strings(users)
	return strings.Join(users, ", ")
}
