package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
)

func echoTool(name string, seen *map[string]any) Definition {
	return Definition{
		Name:        name,
		Description: "echo " + name,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
			"required": []any{"query"},
		},
		Callback: func(_ context.Context, args map[string]any, pool memory.Pool) (Result, error) {
			if seen != nil {
				*seen = args
			}
			return Result{Content: name + " done", Pool: pool}, nil
		},
	}
}

func TestNewRegistry_ResolveAndSpecs(t *testing.T) {
	r, err := NewRegistry(echoTool("search_memories", nil), echoTool("update_pain", nil))
	require.NoError(t, err)

	d, err := r.Resolve("update_pain")
	require.NoError(t, err)
	assert.Equal(t, "echo update_pain", d.Description)

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "search_memories", specs[0].Name, "specs keep registration order")
	assert.Equal(t, 2, r.Len())
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(echoTool("update_pain", nil), echoTool("update_pain", nil))
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestNewRegistry_RejectsInvalidDefinitions(t *testing.T) {
	_, err := NewRegistry(Definition{Name: "no_callback"})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	bad := echoTool("bad_schema", nil)
	bad.Parameters = map[string]any{"type": 42}
	_, err = NewRegistry(bad)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestResolve_Unknown(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	_, err = r.Resolve("create_pain")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestInvoke_CallArgsWinOverDynamicArgs(t *testing.T) {
	var seen map[string]any
	r, err := NewRegistry(echoTool("search_memories", &seen))
	require.NoError(t, err)

	res, err := r.Invoke(context.Background(), "search_memories",
		map[string]any{ArgUserID: "u1", ArgChatID: "c1", "query": "dynamic"},
		map[string]any{"query": "from model"},
		memory.Pool{})
	require.NoError(t, err)
	assert.Equal(t, "search_memories done", res.Content)
	assert.Equal(t, "from model", seen["query"])
	assert.Equal(t, "c1", seen[ArgChatID])
	assert.Equal(t, "u1", seen[ArgUserID])
}

func TestInvoke_IdentityComesOnlyFromDynamicArgs(t *testing.T) {
	var seen map[string]any
	r, err := NewRegistry(echoTool("search_memories", &seen))
	require.NoError(t, err)

	callArgs := map[string]any{"query": "secret", ArgUserID: "victim", ArgChatID: "victim_chat"}
	_, err = r.Invoke(context.Background(), "search_memories",
		map[string]any{ArgUserID: "u1", ArgChatID: "c1"}, callArgs, memory.Pool{})
	require.NoError(t, err)
	assert.Equal(t, "u1", seen[ArgUserID])
	assert.Equal(t, "c1", seen[ArgChatID])
	assert.Equal(t, "secret", seen["query"])
	assert.Equal(t, "victim", callArgs[ArgUserID], "caller map untouched")

	_, err = r.Invoke(context.Background(), "search_memories",
		map[string]any{ArgUserID: "u1"}, map[string]any{"query": "q", ArgChatID: "victim_chat"}, memory.Pool{})
	require.NoError(t, err)
	_, present := seen[ArgChatID]
	assert.False(t, present)
}

func TestInvoke_SchemaCheckedBeforeCallback(t *testing.T) {
	called := false
	def := echoTool("search_memories", nil)
	def.Callback = func(context.Context, map[string]any, memory.Pool) (Result, error) {
		called = true
		return Result{}, nil
	}
	r, err := NewRegistry(def)
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "search_memories", map[string]any{"query": "dynamic args are not validated"}, map[string]any{"query": 7}, memory.Pool{})
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.False(t, called)

	_, err = r.Invoke(context.Background(), "search_memories", nil, nil, memory.Pool{})
	assert.ErrorIs(t, err, ErrInvalidArguments, "missing required argument")
}

func TestInvoke_CallbackErrorPropagates(t *testing.T) {
	boom := errors.New("store down")
	def := echoTool("save_memories", nil)
	def.Callback = func(context.Context, map[string]any, memory.Pool) (Result, error) { return Result{}, boom }
	r, err := NewRegistry(def)
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), "save_memories", nil, map[string]any{"query": "x"}, memory.Pool{})
	assert.ErrorIs(t, err, boom)
}

func TestMerge(t *testing.T) {
	base, err := NewRegistry(echoTool("update_pain", nil))
	require.NoError(t, err)

	merged, err := Merge(base, echoTool("create_pain", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"create_pain", "update_pain"}, merged.Names())
	assert.Equal(t, 1, base.Len(), "base is unchanged")

	_, err = Merge(base, echoTool("update_pain", nil))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	empty, err := Merge(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"segment":  "bakers",
		"keywords": []any{"flour", "ovens"},
		"profiles": []any{map[string]any{"content": "x"}},
		"problem":  nil,
	}
	assert.Equal(t, "bakers", String(args, "segment"))
	assert.Nil(t, OptionalString(args, "problem"))
	assert.Equal(t, "bakers", *OptionalString(args, "segment"))

	kw, err := Strings(args, "keywords")
	require.NoError(t, err)
	assert.Equal(t, []string{"flour", "ovens"}, kw)

	_, err = Strings(map[string]any{"keywords": []any{1}}, "keywords")
	assert.Error(t, err)

	objs, err := Objects(args, "profiles")
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}
