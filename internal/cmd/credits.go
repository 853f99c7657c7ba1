package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	creditsUser   string
	creditsLimit  int
	creditsReason string
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show and grant user credits",
}

var creditsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's balance and recent ledger entries",
	Args:  cobra.NoArgs,
	RunE:  creditsShow,
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <amount>",
	Short: "Add credits to a user's balance",
	Args:  cobra.ExactArgs(1),
	RunE:  creditsGrant,
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsUser, "user", "", "User id (required)")
	_ = creditsCmd.MarkPersistentFlagRequired("user")
	creditsShowCmd.Flags().IntVar(&creditsLimit, "limit", 20, "Maximum ledger entries")
	creditsGrantCmd.Flags().StringVar(&creditsReason, "reason", "manual_grant", "Ledger reason")
	creditsCmd.AddCommand(creditsShowCmd, creditsGrantCmd)
	rootCmd.AddCommand(creditsCmd)
}

func creditsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	balance, err := a.ledger.Balance(ctx, creditsUser)
	if err != nil {
		return fmt.Errorf("reading balance: %w", err)
	}
	entries, err := a.ledger.Entries(ctx, creditsUser, creditsLimit)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User: %s\n", creditsUser)
	fmt.Fprintf(out, "  Balance: %d\n", balance)
	for _, e := range entries {
		fmt.Fprintf(out, "  %s %+5d %-20s %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Delta, e.Reason, e.Reference)
	}
	return nil
}

func creditsGrant(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var amount int64
	if _, err := fmt.Sscan(args[0], &amount); err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive integer, got %q", args[0])
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	balance, err := a.ledger.Grant(ctx, creditsUser, amount, creditsReason)
	if err != nil {
		return fmt.Errorf("granting credits: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Granted %d credits to %s, balance %d\n", amount, creditsUser, balance)
	return nil
}
