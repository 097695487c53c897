package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskDescriptor() *ToolDescriptor {
	return &ToolDescriptor{
		Name:        "create_task",
		Description: "Create a task on the user's list",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["title"]
		}`),
	}
}

func echoHandler(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegistry_Register(t *testing.T) {
	t.Run("valid descriptor", func(t *testing.T) {
		registry := NewRegistry()
		err := registry.Register(taskDescriptor(), echoHandler)
		require.NoError(t, err)

		got := registry.Get("create_task")
		require.NotNil(t, got)
		assert.Equal(t, "create_task", got.Name)
	})

	t.Run("missing name", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.Name = ""
		err := registry.Register(descriptor, echoHandler)
		assert.ErrorIs(t, err, ErrToolNameRequired)
	})

	t.Run("missing description", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.Description = ""
		err := registry.Register(descriptor, echoHandler)
		assert.ErrorIs(t, err, ErrToolDescriptionRequired)
	})

	t.Run("missing input schema", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.InputSchema = nil
		err := registry.Register(descriptor, echoHandler)
		assert.ErrorIs(t, err, ErrInputSchemaRequired)
	})

	t.Run("missing handler", func(t *testing.T) {
		registry := NewRegistry()
		err := registry.Register(taskDescriptor(), nil)
		assert.ErrorIs(t, err, ErrHandlerRequired)
	})

	t.Run("malformed input schema fails registration", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.InputSchema = json.RawMessage(`{not valid`)
		err := registry.Register(descriptor, echoHandler)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid input schema")
	})

	t.Run("malformed output schema fails registration", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.OutputSchema = json.RawMessage(`{"type": 17}`)
		err := registry.Register(descriptor, echoHandler)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output schema")
	})

	t.Run("valid semantic version", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.Version = "v1.2.3"
		err := registry.Register(descriptor, echoHandler)
		assert.NoError(t, err)
	})

	t.Run("invalid semantic version", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.Version = "latest"
		err := registry.Register(descriptor, echoHandler)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid tool version")
	})

	t.Run("timeout defaults", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		require.NoError(t, registry.Register(descriptor, echoHandler))
		assert.Equal(t, defaultTimeoutMs, registry.Get("create_task").TimeoutMs)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(taskDescriptor(), echoHandler))

	descriptor, err := registry.Lookup("create_task")
	require.NoError(t, err)
	assert.Equal(t, "create_task", descriptor.Name)

	_, err = registry.Lookup("delete_everything")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_DescriptorsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"list_tasks", "complete_task", "create_task"} {
		descriptor := taskDescriptor()
		descriptor.Name = name
		require.NoError(t, registry.Register(descriptor, echoHandler))
	}

	var names []string
	for _, descriptor := range registry.Descriptors() {
		names = append(names, descriptor.Name)
	}
	assert.Equal(t, []string{"complete_task", "create_task", "list_tasks"}, names)
	assert.Equal(t, []string{"complete_task", "create_task", "list_tasks"}, registry.Names())
}

func TestRegistry_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(taskDescriptor(), func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"success": true, "task_id": "t-1"}`), nil
		}))

		result := registry.Execute(ctx, "create_task", `{"title": "buy milk"}`)
		require.NotNil(t, result)
		assert.False(t, result.Failed())
		assert.Equal(t, "create_task", result.Name)
		assert.JSONEq(t, `{"success": true, "task_id": "t-1"}`, string(result.Result))
		assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
	})

	t.Run("unknown tool", func(t *testing.T) {
		registry := NewRegistry()
		result := registry.Execute(ctx, "teleport", `{}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Equal(t, "unknown tool: teleport", result.Error)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(taskDescriptor(), echoHandler))

		result := registry.Execute(ctx, "create_task", `{}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Contains(t, result.Error, "args_invalid")
	})

	t.Run("malformed argument JSON", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(taskDescriptor(), echoHandler))

		result := registry.Execute(ctx, "create_task", `{"title": "bu`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
	})

	t.Run("handler error becomes failure result", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(taskDescriptor(), func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return nil, errors.New("store unavailable")
		}))

		result := registry.Execute(ctx, "create_task", `{"title": "buy milk"}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Equal(t, "store unavailable", result.Error)
	})

	t.Run("handler panic becomes failure result", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(taskDescriptor(), func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			panic("nil map write")
		}))

		result := registry.Execute(ctx, "create_task", `{"title": "buy milk"}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Contains(t, result.Error, "panicked")
		assert.Contains(t, result.Error, "nil map write")
	})

	t.Run("output schema violation becomes failure result", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.OutputSchema = json.RawMessage(`{
			"type": "object",
			"properties": {"success": {"type": "boolean"}},
			"required": ["success"]
		}`)
		require.NoError(t, registry.Register(descriptor, func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`{"task_id": "t-1"}`), nil
		}))

		result := registry.Execute(ctx, "create_task", `{"title": "buy milk"}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Contains(t, result.Error, "result_invalid")
	})

	t.Run("handler timeout", func(t *testing.T) {
		registry := NewRegistry()
		descriptor := taskDescriptor()
		descriptor.TimeoutMs = 20
		require.NoError(t, registry.Register(descriptor, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return json.RawMessage(`{}`), nil
			}
		}))

		result := registry.Execute(ctx, "create_task", `{"title": "buy milk"}`)
		require.NotNil(t, result)
		assert.True(t, result.Failed())
		assert.Contains(t, result.Error, "context deadline exceeded")
	})
}

func TestRegistry_ConcurrentExecute(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(taskDescriptor(), func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"success": true}`), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				args := fmt.Sprintf(`{"title": "task %d-%d"}`, n, j)
				result := registry.Execute(context.Background(), "create_task", args)
				assert.False(t, result.Failed())
			}
		}(i)
	}
	wg.Wait()
}
