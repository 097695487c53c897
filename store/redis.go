package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore provides a Redis-backed implementation of the Store interface.
// Records are stored as JSON blobs and indexed for listing. This
// implementation is suitable for distributed systems and production
// deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for stored records.
// After this duration records are automatically deleted; index entries that
// outlive expired bodies are skipped on read. Default is 0: records never
// expire.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "relaykit".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed record store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("myapp"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "relaykit", // Default prefix
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// CreateTask persists a new task to Redis.
// Uses a pipeline to batch the SET and index update into a single round-trip.
func (s *RedisStore) CreateTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	task := newTask(spec)

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, s.ttl)
	pipe.SAdd(ctx, s.taskIndexKey(), task.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.taskIndexKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	return task, nil
}

// CompleteTask marks a task done and writes it back.
func (s *RedisStore) CompleteTask(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	task, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}

	// Completing a finished task is a no-op
	if task.Done {
		return task, nil
	}

	now := time.Now()
	task.Done = true
	task.CompletedAt = &now

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := s.client.Set(ctx, s.taskKey(id), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}

	return task, nil
}

// ListTasks returns tasks matching the given criteria, newest first.
// Task bodies are fetched with a single pipelined GET, then sorted and
// filtered in memory.
func (s *RedisStore) ListTasks(ctx context.Context, opts ListTasksOptions) ([]*Task, error) {
	ids, err := s.client.SMembers(ctx, s.taskIndexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	if len(ids) == 0 {
		return []*Task{}, nil
	}

	tasks, err := s.pipelinedLoadTasks(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	limit := opts.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	out := make([]*Task, 0)
	for _, task := range tasks {
		if len(out) == limit {
			break
		}
		if !taskMatches(task, opts) {
			continue
		}
		out = append(out, task)
	}

	return out, nil
}

// CreateCollection creates a named collection.
// The name is claimed atomically with HSetNX so concurrent creates of the
// same name collide cleanly.
func (s *RedisStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	col := newCollection(name)
	data, err := json.Marshal(col)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection: %w", err)
	}

	claimed, err := s.client.HSetNX(ctx, s.collectionNamesKey(), name, col.ID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hsetnx failed: %w", err)
	}
	if !claimed {
		return nil, ErrConflict
	}

	if err := s.client.Set(ctx, s.collectionKey(col.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}

	return col, nil
}

// GetCollectionByName looks up a collection by its name.
func (s *RedisStore) GetCollectionByName(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	id, err := s.client.HGet(ctx, s.collectionNamesKey(), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}

	return s.loadCollection(ctx, id)
}

// CreateEntry adds an entry to the given collection.
// Entries live in a per-collection hash keyed by entry ID, so caller-supplied
// IDs collide cleanly.
func (s *RedisStore) CreateEntry(ctx context.Context, collectionID string, spec EntrySpec) (*Entry, error) {
	if collectionID == "" {
		return nil, ErrInvalidID
	}

	if err := s.checkCollectionExists(ctx, collectionID); err != nil {
		return nil, err
	}

	entry := newEntry(collectionID, spec)
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := s.entriesKey(collectionID)
	stored, err := s.client.HSetNX(ctx, key, entry.ID, data).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hsetnx failed: %w", err)
	}
	if !stored {
		return nil, ErrConflict
	}

	if err := s.expireIfTTL(ctx, key); err != nil {
		return nil, err
	}

	return entry, nil
}

// ListEntries returns a collection's entries in creation order.
func (s *RedisStore) ListEntries(ctx context.Context, collectionID string) ([]*Entry, error) {
	if collectionID == "" {
		return nil, ErrInvalidID
	}

	if err := s.checkCollectionExists(ctx, collectionID); err != nil {
		return nil, err
	}

	vals, err := s.client.HVals(ctx, s.entriesKey(collectionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis hvals failed: %w", err)
	}

	entries := make([]*Entry, 0, len(vals))
	for _, v := range vals {
		var entry Entry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	// Hash iteration order is unspecified
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}

// AppendTranscript appends a segment to the session's transcript list.
// Uses a pipeline to batch RPUSH and EXPIRE into a single round-trip.
func (s *RedisStore) AppendTranscript(ctx context.Context, sessionID string, seg TranscriptSegment) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("failed to marshal segment: %w", err)
	}

	key := s.transcriptKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// Transcript returns a session's transcript segments in append order.
func (s *RedisStore) Transcript(ctx context.Context, sessionID string) ([]TranscriptSegment, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	vals, err := s.client.LRange(ctx, s.transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	if len(vals) == 0 {
		return nil, nil
	}

	segments := make([]TranscriptSegment, 0, len(vals))
	for _, v := range vals {
		var seg TranscriptSegment
		if err := json.Unmarshal([]byte(v), &seg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal segment: %w", err)
		}
		segments = append(segments, seg)
	}

	return segments, nil
}

// loadTask fetches and decodes a single task.
func (s *RedisStore) loadTask(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// loadCollection fetches and decodes a single collection.
func (s *RedisStore) loadCollection(ctx context.Context, id string) (*Collection, error) {
	data, err := s.client.Get(ctx, s.collectionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var col Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection: %w", err)
	}

	return &col, nil
}

// checkCollectionExists returns ErrNotFound when the collection body is gone.
func (s *RedisStore) checkCollectionExists(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, s.collectionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

// pipelinedLoadTasks fetches multiple task bodies using a single pipelined GET.
func (s *RedisStore) pipelinedLoadTasks(ctx context.Context, ids []string) ([]*Task, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	tasks := make([]*Task, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Index members can outlive expired task bodies
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, &task)
	}

	return tasks, nil
}

// expireIfTTL sets expiration on a key if TTL is configured.
func (s *RedisStore) expireIfTTL(ctx context.Context, key string) error {
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire failed: %w", err)
		}
	}
	return nil
}

// taskKey generates the Redis key for a task record.
func (s *RedisStore) taskKey(id string) string {
	return fmt.Sprintf("%s:task:%s", s.prefix, id)
}

// taskIndexKey generates the Redis key for the task ID index.
func (s *RedisStore) taskIndexKey() string {
	return fmt.Sprintf("%s:tasks", s.prefix)
}

// collectionKey generates the Redis key for a collection record.
func (s *RedisStore) collectionKey(id string) string {
	return fmt.Sprintf("%s:collection:%s", s.prefix, id)
}

// collectionNamesKey generates the Redis key for the name -> ID index.
func (s *RedisStore) collectionNamesKey() string {
	return fmt.Sprintf("%s:collections", s.prefix)
}

// entriesKey generates the Redis key for a collection's entries hash.
func (s *RedisStore) entriesKey(collectionID string) string {
	return fmt.Sprintf("%s:collection:%s:entries", s.prefix, collectionID)
}

// transcriptKey generates the Redis key for a session's transcript list.
func (s *RedisStore) transcriptKey(sessionID string) string {
	return fmt.Sprintf("%s:transcript:%s", s.prefix, sessionID)
}
