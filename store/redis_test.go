package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStore creates a test Redis store with miniredis
func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, opts...)
	return store, mr
}

func TestRedisStore_CreateTask(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, TaskSpec{Title: "buy milk", Priority: PriorityMedium, Notes: "two percent"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "buy milk", task.Title)
	assert.Equal(t, "two percent", task.Notes)
	assert.False(t, task.Done)
}

func TestRedisStore_CompleteTask(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	created, err := store.CreateTask(ctx, TaskSpec{Title: "buy milk"})
	require.NoError(t, err)

	completed, err := store.CompleteTask(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, completed.Done)
	require.NotNil(t, completed.CompletedAt)

	// Completing again keeps the original completion time
	again, err := store.CompleteTask(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, again.CompletedAt.Equal(*completed.CompletedAt))
}

func TestRedisStore_CompleteTaskNotFound(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.CompleteTask(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CompleteTaskInvalidID(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.CompleteTask(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRedisStore_ListTasksNewestFirst(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	// Stagger creation so timestamps order deterministically
	for _, title := range []string{"first", "second", "third"} {
		_, err := store.CreateTask(ctx, TaskSpec{Title: title})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	tasks, err := store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "third", tasks[0].Title)
	assert.Equal(t, "second", tasks[1].Title)
	assert.Equal(t, "first", tasks[2].Title)
}

func TestRedisStore_ListTasksFilters(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.CreateTask(ctx, TaskSpec{Title: "urgent", Priority: PriorityHigh})
	require.NoError(t, err)
	done, err := store.CreateTask(ctx, TaskSpec{Title: "done", Priority: PriorityLow})
	require.NoError(t, err)
	_, err = store.CompleteTask(ctx, done.ID)
	require.NoError(t, err)

	// Done tasks are excluded by default
	tasks, err := store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "urgent", tasks[0].Title)

	// IncludeDone brings them back
	tasks, err = store.ListTasks(ctx, ListTasksOptions{IncludeDone: true})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	// Priority filter
	tasks, err = store.ListTasks(ctx, ListTasksOptions{IncludeDone: true, Priority: PriorityLow})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "done", tasks[0].Title)
}

func TestRedisStore_ListTasksEmpty(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	tasks, err := store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	assert.Len(t, tasks, 0)
}

func TestRedisStore_TaskTTL(t *testing.T) {
	// Create store with short TTL for testing
	store, mr := setupRedisStore(t, WithTTL(100*time.Millisecond))
	ctx := context.Background()

	created, err := store.CreateTask(ctx, TaskSpec{Title: "ephemeral"})
	require.NoError(t, err)

	tasks, err := store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Fast-forward time in miniredis
	mr.FastForward(200 * time.Millisecond)

	tasks, err = store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	assert.Len(t, tasks, 0)

	_, err = store.CompleteTask(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CreateCollection(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	col, err := store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)
	assert.NotEmpty(t, col.ID)
	assert.Equal(t, "groceries", col.Name)
}

func TestRedisStore_CreateCollectionConflict(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)

	_, err = store.CreateCollection(ctx, "groceries")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRedisStore_GetCollectionByName(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	created, err := store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)

	found, err := store.GetCollectionByName(ctx, "groceries")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "groceries", found.Name)

	_, err = store.GetCollectionByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CreateEntryAndList(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	col, err := store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)

	// Stagger creation so timestamps order deterministically
	for _, text := range []string{"milk", "eggs", "bread"} {
		_, err := store.CreateEntry(ctx, col.ID, EntrySpec{
			Text:   text,
			Fields: map[string]string{"source": "voice"},
		})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	entries, err := store.ListEntries(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "milk", entries[0].Text)
	assert.Equal(t, "eggs", entries[1].Text)
	assert.Equal(t, "bread", entries[2].Text)
	assert.Equal(t, "voice", entries[0].Fields["source"])
	assert.Equal(t, col.ID, entries[0].CollectionID)
}

func TestRedisStore_CreateEntryConflict(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	col, err := store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)

	_, err = store.CreateEntry(ctx, col.ID, EntrySpec{ID: "entry-1", Text: "milk"})
	require.NoError(t, err)

	_, err = store.CreateEntry(ctx, col.ID, EntrySpec{ID: "entry-1", Text: "eggs"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRedisStore_CreateEntryCollectionNotFound(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	_, err := store.CreateEntry(ctx, "nonexistent", EntrySpec{Text: "milk"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Transcript(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	segments := []TranscriptSegment{
		{Role: "user", Text: "add milk to my list", At: time.Now()},
		{Role: "assistant", Text: "Done, milk is on the list.", At: time.Now()},
	}
	for _, seg := range segments {
		err := store.AppendTranscript(ctx, "sess-1", seg)
		require.NoError(t, err)
	}

	loaded, err := store.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "user", loaded[0].Role)
	assert.Equal(t, "add milk to my list", loaded[0].Text)
	assert.Equal(t, "assistant", loaded[1].Role)
}

func TestRedisStore_TranscriptEmpty(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	loaded, err := store.Transcript(ctx, "sess-unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStore_TranscriptTTL(t *testing.T) {
	store, mr := setupRedisStore(t, WithTTL(100*time.Millisecond))
	ctx := context.Background()

	err := store.AppendTranscript(ctx, "sess-1", TranscriptSegment{Role: "user", Text: "hello"})
	require.NoError(t, err)

	loaded, err := store.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	mr.FastForward(200 * time.Millisecond)

	loaded, err = store.Transcript(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	store, mr := setupRedisStore(t, WithPrefix("myapp"))
	ctx := context.Background()

	_, err := store.CreateTask(ctx, TaskSpec{Title: "buy milk"})
	require.NoError(t, err)
	_, err = store.CreateCollection(ctx, "groceries")
	require.NoError(t, err)

	// Check Redis directly for keys with the custom prefix
	keys := mr.Keys()
	assert.Contains(t, keys, "myapp:tasks")
	assert.Contains(t, keys, "myapp:collections")
	for _, key := range keys {
		assert.Contains(t, key, "myapp:")
	}
}

func TestRedisStore_JSONSerialization(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	col, err := store.CreateCollection(ctx, "contacts")
	require.NoError(t, err)

	created, err := store.CreateEntry(ctx, col.ID, EntrySpec{
		Text: "met Dana at the conference",
		Fields: map[string]string{
			"name":    "Dana",
			"company": "Acme",
			"email":   "dana@example.com",
		},
	})
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Verify the full record survives the round-trip
	loaded := entries[0]
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "met Dana at the conference", loaded.Text)
	assert.Equal(t, "Dana", loaded.Fields["name"])
	assert.Equal(t, "Acme", loaded.Fields["company"])
	assert.Equal(t, "dana@example.com", loaded.Fields["email"])
	assert.WithinDuration(t, created.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestRedisStore_ManyTasksDefaultLimit(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	// Create more tasks than the default limit of 100
	for i := 0; i < 120; i++ {
		_, err := store.CreateTask(ctx, TaskSpec{Title: fmt.Sprintf("task-%d", i)})
		require.NoError(t, err)
	}

	tasks, err := store.ListTasks(ctx, ListTasksOptions{})
	require.NoError(t, err)
	assert.Len(t, tasks, 100)
}
