package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/attachment"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

var (
	memUser       string
	memKind       string
	memChat       string
	memPain       string
	memTokens     int
	memType       string
	memImportance string
	memFile       string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Search and add long-term memory",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search one memory kind inside a token budget",
	Args:  cobra.MaximumNArgs(1),
	RunE:  memorySearch,
}

var memoryAddCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Add a memory item (profile, event or artifact)",
	Long: `Add a memory item. Artifact content may come from --file
(.txt, .md, .csv, .json, .html); it is screened for prompt injection.`,
	Args: cobra.MaximumNArgs(1),
	RunE:  memoryAdd,
}

func init() {
	memoryCmd.PersistentFlags().StringVar(&memUser, "user", "", "User id (required)")
	memoryCmd.PersistentFlags().StringVar(&memKind, "kind", string(memory.KindProfile), "Memory kind (profile, event, artifact)")
	memoryCmd.PersistentFlags().StringVar(&memChat, "chat", "", "Chat id, required for event memory")
	memoryCmd.PersistentFlags().StringVar(&memPain, "pain", "", "Pain id, required for artifact memory")
	_ = memoryCmd.MarkPersistentFlagRequired("user")

	memorySearchCmd.Flags().IntVar(&memTokens, "tokens", budget.DefaultToolMemoryTokens, "Token budget of the result")

	memoryAddCmd.Flags().StringVar(&memType, "type", "", "Item type (e.g. preference, story)")
	memoryAddCmd.Flags().StringVar(&memFile, "file", "", "Read artifact content from a file")
	memoryAddCmd.Flags().StringVar(&memImportance, "importance", string(memory.ImportanceMedium), "Importance (low, medium, high)")

	memoryCmd.AddCommand(memorySearchCmd, memoryAddCmd)
	rootCmd.AddCommand(memoryCmd)
}

// memoryScope resolves the owner scope of kind and checks the caller owns
// the chat or draft it names.
func (a *app) memoryScope(ctx context.Context, kind memory.Kind) (memory.Scope, error) {
	switch kind {
	case memory.KindProfile:
		return memory.Scope{UserID: memUser}, nil
	case memory.KindEvent:
		c, err := a.chats.Get(ctx, memChat)
		if err != nil {
			return memory.Scope{}, err
		}
		if c.UserID != memUser {
			return memory.Scope{}, chat.ErrForbidden
		}
		return memory.Scope{UserID: memUser, ChatID: c.ID}, nil
	case memory.KindArtifact:
		d, err := a.pains.GetOwned(ctx, memUser, memPain)
		if err != nil {
			return memory.Scope{}, err
		}
		return memory.Scope{UserID: memUser, PainID: d.ID}, nil
	}
	return memory.Scope{}, fmt.Errorf("unsupported memory kind %q", kind)
}

func memorySearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kind := memory.Kind(memKind)
	scope, err := a.memoryScope(ctx, kind)
	if err != nil {
		return err
	}
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	items, err := a.memory.Search(ctx, kind, query, memTokens, scope)
	if err != nil {
		return fmt.Errorf("searching memory: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No matches found.")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(out, "  %s [%s/%s] %s (%d tokens)\n", it.ID, it.Importance, it.Type,
			strings.ReplaceAll(it.Content, "\n", " "), it.TokenCost)
	}
	fmt.Fprintf(out, "%d items, %d tokens\n", len(items), budget.Total(items, memory.Cost))
	return nil
}

func memoryAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kind := memory.Kind(memKind)
	content, err := addContent(ctx, kind, args)
	if err != nil {
		return err
	}
	var it memory.Item
	if kind == memory.KindArtifact {
		it, err = a.service.AddArtifact(ctx, memUser, memPain, content)
		if err != nil {
			return err
		}
	} else {
		scope, err := a.memoryScope(ctx, kind)
		if err != nil {
			return err
		}
		saved, err := a.memory.Put(ctx, memory.Entry{
			Item: memory.Item{
				Kind:       kind,
				Type:       memType,
				Content:    content,
				Importance: memory.Importance(memImportance),
			},
			Scope: scope,
		})
		if err != nil {
			return fmt.Errorf("saving memory: %w", err)
		}
		it = saved[0]
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s memory %s (%d tokens)\n", it.Kind, it.ID, it.TokenCost)
	return nil
}

// addContent returns the positional content, or the extracted text of
// --file for artifacts.
func addContent(ctx context.Context, kind memory.Kind, args []string) (string, error) {
	if memFile == "" {
		if len(args) == 0 {
			return "", fmt.Errorf("content or --file is required")
		}
		return args[0], nil
	}
	if kind != memory.KindArtifact {
		return "", fmt.Errorf("--file is only supported for artifact memory")
	}
	return attachment.NewExtractor(attachment.DefaultMaxSizeMB).Extract(ctx, memFile)
}
