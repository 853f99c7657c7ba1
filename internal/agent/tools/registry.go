// Package tools holds the per-run tool registry: a name-keyed set of tool
// definitions, each a JSON Schema for the model's arguments plus the
// callback that performs the side effect. Registries are built once per run
// and never change afterwards.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/llm"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

var (
	// ErrUnknownTool is returned when a call names a tool absent from the registry.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool is returned when two definitions share a name.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrInvalidArguments is returned when call arguments fail the tool schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrInvalidDefinition is returned for a definition without a name,
	// callback or compilable schema.
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// Result is what a callback hands back to the loop: the text of the tool
// result turn and the memory pool for the next iteration.
type Result struct {
	Content string
	Pool    memory.Pool
}

// Callback performs a tool's side effect. args holds the run's dynamic args
// overlaid with the model's call args. pool is the loop's current pool; a
// callback that adds memory returns the extended pool in Result.
type Callback func(ctx context.Context, args map[string]any, pool memory.Pool) (Result, error)

// Definition describes one tool.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object for the model's call arguments.
	Parameters map[string]any
	Callback   Callback
}

type entry struct {
	def    Definition
	schema *gojsonschema.Schema
}

// Registry is an immutable name-to-definition lookup.
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry validates and compiles defs. Names must be unique.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(defs))}
	for _, d := range defs {
		if d.Name == "" || d.Callback == nil {
			return nil, fmt.Errorf("%w: %q needs a name and a callback", ErrInvalidDefinition, d.Name)
		}
		if _, dup := r.entries[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
		if err != nil {
			return nil, fmt.Errorf("%w: compiling schema of %s: %v", ErrInvalidDefinition, d.Name, err)
		}
		d.Parameters = params
		r.entries[d.Name] = entry{def: d, schema: schema}
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// Merge returns a new registry with base's definitions followed by extra.
// A name collision is ErrDuplicateTool. A nil base is an empty registry.
func Merge(base *Registry, extra ...Definition) (*Registry, error) {
	var defs []Definition
	if base != nil {
		defs = base.Definitions()
	}
	return NewRegistry(append(defs, extra...)...)
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (Definition, error) {
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.def, nil
}

// Invoke checks callArgs against the tool's schema, overlays them on
// dynamicArgs (call args win) and runs the callback. The identity keys
// ArgUserID and ArgChatID only ever come from dynamicArgs; call args
// carrying them are dropped.
func (r *Registry) Invoke(ctx context.Context, name string, dynamicArgs, callArgs map[string]any, pool memory.Pool) (Result, error) {
	e, ok := r.entries[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	callArgs = withoutReserved(name, callArgs)
	if err := validate(e.schema, callArgs); err != nil {
		return Result{}, fmt.Errorf("%s: %w", name, err)
	}
	return e.def.Callback(ctx, MergeArgs(dynamicArgs, callArgs), pool)
}

// Definitions returns the definitions in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].def)
	}
	return out
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Specs returns the tool definitions in the provider's shape.
func (r *Registry) Specs() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, n := range r.order {
		d := r.entries[n].def
		out = append(out, llm.Tool{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}

// MergeArgs overlays call on dynamic into a new map; call wins on collision.
func MergeArgs(dynamic, call map[string]any) map[string]any {
	out := make(map[string]any, len(dynamic)+len(call))
	for k, v := range dynamic {
		out[k] = v
	}
	for k, v := range call {
		out[k] = v
	}
	return out
}

// withoutReserved returns a copy of callArgs without the identity keys.
func withoutReserved(tool string, callArgs map[string]any) map[string]any {
	out := make(map[string]any, len(callArgs))
	for k, v := range callArgs {
		if k == ArgUserID || k == ArgChatID {
			log.Warn().Str("tool", tool).Str("arg", k).Msg("tool_reserved_arg_dropped")
			continue
		}
		out[k] = v
	}
	return out
}

func validate(schema *gojsonschema.Schema, args map[string]any) error {
	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}
