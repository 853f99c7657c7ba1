// Package memtools provides the search_memories and save_memories tool
// definitions backed by the memory store.
package memtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

// Tool names.
const (
	SearchName = "search_memories"
	SaveName   = "save_memories"
)

// Result texts returned to the model.
const (
	searchedText = "Memory searched!"
	savedText    = "Memory saved successfully!"
)

// Store is the memory collaborator the tools need.
type Store interface {
	Search(ctx context.Context, k memory.Kind, query string, limit int, scope memory.Scope) ([]memory.Item, error)
	Put(ctx context.Context, entries ...memory.Entry) ([]memory.Item, error)
}

// Config tunes the search tool.
type Config struct {
	// Tokens is the total budget of one search_memories call.
	Tokens int
	// RecentWindow bounds the recent event search.
	RecentWindow time.Duration
	Policy       budget.Policy
	Now          func() time.Time
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Tokens:       budget.DefaultToolMemoryTokens,
		RecentWindow: 7 * 24 * time.Hour,
		Policy:       budget.DefaultPolicy(),
	}
}

// Tools builds both memory tools over store.
func Tools(store Store, cfg Config) []tools.Definition {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return []tools.Definition{Search(store, cfg), Save(store)}
}

// Search returns the search_memories definition.
func Search(store Store, cfg Config) tools.Definition {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return tools.Definition{
		Name:        SearchName,
		Description: "Search the memories for relevant information",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The query to search for"},
			},
			"required": []any{"query"},
		},
		Callback: func(ctx context.Context, args map[string]any, pool memory.Pool) (tools.Result, error) {
			items, err := search(ctx, store, cfg, args)
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Content: searchedText, Pool: pool.With(items...)}, nil
		},
	}
}

func search(ctx context.Context, store Store, cfg Config, args map[string]any) ([]memory.Item, error) {
	query := tools.String(args, "query")
	userID := tools.String(args, tools.ArgUserID)
	chatID := tools.String(args, tools.ArgChatID)
	split := cfg.Policy.SplitMemory(cfg.Tokens)

	var out []memory.Item
	if userID != "" {
		profiles, err := store.Search(ctx, memory.KindProfile, query, split.Get(budget.CategoryProfile), memory.Scope{UserID: userID})
		if err != nil {
			return nil, fmt.Errorf("searching profile memory: %w", err)
		}
		out = append(out, profiles...)
	}
	if chatID != "" {
		allTime, err := store.Search(ctx, memory.KindEvent, query, split.Get(budget.CategoryEventAllTime), memory.Scope{ChatID: chatID})
		if err != nil {
			return nil, fmt.Errorf("searching event memory: %w", err)
		}
		recent, err := store.Search(ctx, memory.KindEvent, query, split.Get(budget.CategoryEventRecent),
			memory.Scope{ChatID: chatID, Since: cfg.Now().Add(-cfg.RecentWindow)})
		if err != nil {
			return nil, fmt.Errorf("searching recent event memory: %w", err)
		}
		out = append(out, memory.Dedupe(append(allTime, recent...))...)
	}
	log.Debug().Str("user_id", userID).Str("chat_id", chatID).Int("items", len(out)).Msg("memory_tool_search")
	return out, nil
}

// Save returns the save_memories definition.
func Save(store Store) tools.Definition {
	entry := func(types []string, what string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type":       map[string]any{"type": "string", "enum": toAny(types), "description": "The type of the " + what},
				"importance": map[string]any{"type": "string", "enum": toAny(memory.Importances), "description": "The importance of the " + what},
				"content":    map[string]any{"type": "string", "description": "The content of the " + what},
			},
			"required": []any{"type", "importance", "content"},
		}
	}
	return tools.Definition{
		Name:        SaveName,
		Description: "Save important new memories",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"profiles": map[string]any{"type": "array", "items": entry(memory.ProfileTypes, "profile")},
				"events":   map[string]any{"type": "array", "items": entry(memory.EventTypes, "event")},
			},
			"required": []any{"profiles", "events"},
		},
		Callback: func(ctx context.Context, args map[string]any, pool memory.Pool) (tools.Result, error) {
			entries, err := saveEntries(args)
			if err != nil {
				return tools.Result{}, err
			}
			if len(entries) == 0 {
				return tools.Result{Content: savedText, Pool: pool}, nil
			}
			stored, err := store.Put(ctx, entries...)
			if err != nil {
				return tools.Result{}, fmt.Errorf("saving memories: %w", err)
			}
			log.Info().Int("items", len(stored)).Msg("memory_tool_saved")
			return tools.Result{Content: savedText, Pool: pool.With(stored...)}, nil
		},
	}
}

func saveEntries(args map[string]any) ([]memory.Entry, error) {
	userID := tools.String(args, tools.ArgUserID)
	chatID := strings.TrimSpace(tools.String(args, tools.ArgChatID))

	profiles, err := tools.Objects(args, "profiles")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
	}
	events, err := tools.Objects(args, "events")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
	}

	var out []memory.Entry
	if userID != "" {
		for _, p := range profiles {
			out = append(out, memory.Entry{Item: itemFrom(memory.KindProfile, p), Scope: memory.Scope{UserID: userID}})
		}
	}
	if chatID == "" {
		if len(events) > 0 {
			log.Warn().Int("events", len(events)).Msg("memory_tool_events_skipped_no_chat")
		}
		return out, nil
	}
	for _, e := range events {
		out = append(out, memory.Entry{Item: itemFrom(memory.KindEvent, e), Scope: memory.Scope{UserID: userID, ChatID: chatID}})
	}
	return out, nil
}

func itemFrom(k memory.Kind, m map[string]any) memory.Item {
	imp, err := memory.ParseImportance(tools.String(m, "importance"))
	if err != nil {
		imp = memory.ImportanceMedium
	}
	return memory.Item{Kind: k, Type: tools.String(m, "type"), Content: tools.String(m, "content"), Importance: imp}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
