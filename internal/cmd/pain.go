package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
)

var (
	painUser     string
	painQueryIdx []int
)

var painCmd = &cobra.Command{
	Use:   "pain",
	Short: "Inspect pain drafts and run their workflows",
}

var painListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's pain drafts",
	Args:  cobra.NoArgs,
	RunE:  painList,
}

var painShowCmd = &cobra.Command{
	Use:   "show <pain-id>",
	Short: "Show a pain draft",
	Args:  cobra.ExactArgs(1),
	RunE:  painShow,
}

var painValidateCmd = &cobra.Command{
	Use:   "validate <pain-id>",
	Short: "Move a draft into validation and generate its research queries",
	Args:  cobra.ExactArgs(1),
	RunE:  painValidate,
}

var painResearchCmd = &cobra.Command{
	Use:   "research <pain-id>",
	Short: "Search the web for a draft's research queries and store the evidence",
	Long: `Runs the draft's research queries against the configured web search
endpoint (search_url), extracts quotes, insights, competitors and hacks
from every page found and stores them as artifact memory of the draft.

Each query costs charge_amount times search_limit credits.`,
	Args: cobra.ExactArgs(1),
	RunE: painResearch,
}

var painPdfCmd = &cobra.Command{
	Use:   "pdf <pain-id>",
	Short: "Generate the report document of a draft",
	Args:  cobra.ExactArgs(1),
	RunE:  painGenerate(pain.DocumentReport),
}

var painLandingCmd = &cobra.Command{
	Use:   "landing <pain-id>",
	Short: "Generate the landing page of a draft",
	Args:  cobra.ExactArgs(1),
	RunE:  painGenerate(pain.DocumentLanding),
}

var painArchiveCmd = &cobra.Command{
	Use:   "archive <pain-id>",
	Short: "Hide a pain draft from listings and agent context",
	Args:  cobra.ExactArgs(1),
	RunE:  painArchive,
}

func init() {
	painCmd.PersistentFlags().StringVar(&painUser, "user", "", "User id owning the drafts (required)")
	_ = painCmd.MarkPersistentFlagRequired("user")
	painResearchCmd.Flags().IntSliceVar(&painQueryIdx, "query", nil, "Query number to run, as listed by pain show (repeatable; default all)")
	painCmd.AddCommand(painListCmd, painShowCmd, painValidateCmd, painResearchCmd, painPdfCmd, painLandingCmd, painArchiveCmd)
	rootCmd.AddCommand(painCmd)
}

func painList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	drafts, err := a.pains.ListByUser(ctx, painUser)
	if err != nil {
		return fmt.Errorf("listing drafts: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(drafts) == 0 {
		fmt.Fprintln(out, "No pain drafts found.")
		return nil
	}
	fmt.Fprintf(out, "%-18s %-11s %-24s %s\n", "ID", "STATUS", "CHAT", "SEGMENT")
	for _, d := range drafts {
		fmt.Fprintf(out, "%-18s %-11s %-24s %s\n", d.ID, d.Status, d.ChatID, d.Segment)
	}
	return nil
}

func painShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.pains.GetOwned(ctx, painUser, args[0])
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}

func painArchive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.pains.GetOwned(ctx, painUser, args[0])
	if err != nil {
		return err
	}
	if err := a.pains.Archive(ctx, d.ID); err != nil {
		return fmt.Errorf("archiving draft: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Archived pain %s\n", d.ID)
	return nil
}

func painValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withLLM(); err != nil {
		return err
	}

	d, err := a.service.StartValidation(ctx, painUser, args[0])
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}

func painResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withLLM(); err != nil {
		return err
	}

	items, err := a.service.SearchArtifacts(ctx, painUser, args[0], painQueryIdx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stored %d artifacts for pain %s\n", len(items), args[0])
	for _, it := range items {
		first, _, _ := strings.Cut(it.Content, "\n")
		fmt.Fprintf(out, "  [%s] %s\n", it.Type, first)
	}
	return nil
}

func painGenerate(doc pain.Document) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.withLLM(); err != nil {
			return err
		}

		d, err := a.runner.Generate(ctx, painUser, args[0], doc)
		if err != nil {
			return err
		}
		html := d.Report
		if doc == pain.DocumentLanding {
			html = d.Landing
		}
		fmt.Fprintln(cmd.OutOrStdout(), html)
		return nil
	}
}

func printDraft(w io.Writer, d *pain.Draft) {
	fmt.Fprintf(w, "Pain Draft: %s\n", d.ID)
	fmt.Fprintf(w, "  Status:   %s\n", d.Status)
	fmt.Fprintf(w, "  Chat:     %s\n", d.ChatID)
	fmt.Fprintf(w, "  Segment:  %s\n", d.Segment)
	fmt.Fprintf(w, "  Problem:  %s\n", d.Problem)
	fmt.Fprintf(w, "  JTBD:     %s\n", d.JTBD)
	fmt.Fprintf(w, "  Keywords: %s\n", strings.Join(d.Keywords, ", "))
	fmt.Fprintf(w, "  Updated:  %s\n", d.Updated.Format("2006-01-02 15:04:05 UTC"))
	if len(d.Queries) > 0 {
		fmt.Fprintln(w, "  Research queries:")
		for i, q := range d.Queries {
			fmt.Fprintf(w, "    %d. [%s] %s\n", i, q.Type, q.Query)
		}
	}
	if d.Report != "" {
		fmt.Fprintln(w, "  Report:   generated")
	}
	if d.Landing != "" {
		fmt.Fprintln(w, "  Landing:  generated")
	}
}
