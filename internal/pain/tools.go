package pain

import (
	"context"
	"fmt"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent/tools"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

// Tool names.
const (
	CreateToolName = "create_pain"
	UpdateToolName = "update_pain"
)

// Tools returns the create_pain and update_pain definitions. Both refresh
// the draft's static fact in the pool so the next iteration sees it.
func Tools(store *Store) []tools.Definition {
	return []tools.Definition{CreateTool(store), UpdateTool(store)}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func nullableStr(desc string) map[string]any {
	return map[string]any{"type": []any{"string", "null"}, "description": desc}
}

// CreateTool returns the create_pain definition.
func CreateTool(store *Store) tools.Definition {
	return tools.Definition{
		Name:        CreateToolName,
		Description: "Create a new pain draft",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"segment":  str("The segment of the pain. 1-3 words max."),
				"problem":  str("The problem experienced by the segment. 1 small sentence max."),
				"jtbd":     str("The job to be done for the segment. 1 small sentence max."),
				"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "The keywords to search for the pain"},
			},
			"required": []any{"segment", "problem", "jtbd", "keywords"},
		},
		Callback: func(ctx context.Context, args map[string]any, pool memory.Pool) (tools.Result, error) {
			keywords, err := tools.Strings(args, "keywords")
			if err != nil {
				return tools.Result{}, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
			}
			d, err := store.Create(ctx, Draft{
				UserID:   tools.String(args, tools.ArgUserID),
				ChatID:   tools.String(args, tools.ArgChatID),
				Segment:  tools.String(args, "segment"),
				Problem:  tools.String(args, "problem"),
				JTBD:     tools.String(args, "jtbd"),
				Keywords: keywords,
			})
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Content: "Draft created", Pool: pool.Upsert(d.StaticItem())}, nil
		},
	}
}

// UpdateTool returns the update_pain definition.
func UpdateTool(store *Store) tools.Definition {
	return tools.Definition{
		Name:        UpdateToolName,
		Description: "Update a pain draft",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":      str("The id of the pain"),
				"segment": nullableStr("The segment of the pain."),
				"problem": nullableStr("The problem experienced by the segment."),
				"jtbd":    nullableStr("The job to be done for the segment"),
				"keywords": map[string]any{
					"type":        []any{"array", "null"},
					"items":       map[string]any{"type": "string"},
					"description": "The keywords to search for the pain",
				},
			},
			"required": []any{"id"},
		},
		Callback: func(ctx context.Context, args map[string]any, pool memory.Pool) (tools.Result, error) {
			id := tools.String(args, "id")
			if _, err := store.GetOwned(ctx, tools.String(args, tools.ArgUserID), id); err != nil {
				return tools.Result{}, err
			}
			keywords, err := tools.Strings(args, "keywords")
			if err != nil {
				return tools.Result{}, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
			}
			d, err := store.Update(ctx, id, Update{
				Segment:  tools.OptionalString(args, "segment"),
				Problem:  tools.OptionalString(args, "problem"),
				JTBD:     tools.OptionalString(args, "jtbd"),
				Keywords: keywords,
			})
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{Content: "Draft updated", Pool: pool.Upsert(d.StaticItem())}, nil
		},
	}
}
