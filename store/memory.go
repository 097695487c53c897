package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and single-instance
// deployments. For distributed systems, use RedisStore.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	taskOrder   []string // Creation order, oldest first
	collections map[string]*Collection
	nameIndex   map[string]string // Collection name -> collection ID
	entries     map[string][]*Entry
	transcripts map[string][]TranscriptSegment
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*Task),
		collections: make(map[string]*Collection),
		nameIndex:   make(map[string]string),
		entries:     make(map[string][]*Entry),
		transcripts: make(map[string][]TranscriptSegment),
	}
}

// CreateTask persists a new task built from the given spec.
func (s *MemoryStore) CreateTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	task := newTask(spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	s.taskOrder = append(s.taskOrder, task.ID)

	return cloneTask(task), nil
}

// CompleteTask marks a task done and records the completion time.
func (s *MemoryStore) CompleteTask(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, ErrNotFound
	}

	// Completing a finished task is a no-op
	if !task.Done {
		now := time.Now()
		task.Done = true
		task.CompletedAt = &now
	}

	return cloneTask(task), nil
}

// ListTasks returns tasks matching the given criteria, newest first.
func (s *MemoryStore) ListTasks(ctx context.Context, opts ListTasksOptions) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	// Walk creation order backwards so the newest tasks come first
	tasks := make([]*Task, 0)
	for i := len(s.taskOrder) - 1; i >= 0 && len(tasks) < limit; i-- {
		task := s.tasks[s.taskOrder[i]]
		if !taskMatches(task, opts) {
			continue
		}
		tasks = append(tasks, cloneTask(task))
	}

	return tasks, nil
}

// CreateCollection creates a named collection.
func (s *MemoryStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.nameIndex[name]; taken {
		return nil, ErrConflict
	}

	col := newCollection(name)
	s.collections[col.ID] = col
	s.nameIndex[name] = col.ID

	colCopy := *col
	return &colCopy, nil
}

// GetCollectionByName looks up a collection by its name.
func (s *MemoryStore) GetCollectionByName(ctx context.Context, name string) (*Collection, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.nameIndex[name]
	if !exists {
		return nil, ErrNotFound
	}

	colCopy := *s.collections[id]
	return &colCopy, nil
}

// CreateEntry adds an entry to the given collection.
func (s *MemoryStore) CreateEntry(ctx context.Context, collectionID string, spec EntrySpec) (*Entry, error) {
	if collectionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collectionID]; !exists {
		return nil, ErrNotFound
	}

	if spec.ID != "" {
		for _, existing := range s.entries[collectionID] {
			if existing.ID == spec.ID {
				return nil, ErrConflict
			}
		}
	}

	entry := newEntry(collectionID, spec)
	s.entries[collectionID] = append(s.entries[collectionID], entry)

	return cloneEntry(entry), nil
}

// ListEntries returns a collection's entries in creation order.
func (s *MemoryStore) ListEntries(ctx context.Context, collectionID string) ([]*Entry, error) {
	if collectionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.collections[collectionID]; !exists {
		return nil, ErrNotFound
	}

	entries := make([]*Entry, 0, len(s.entries[collectionID]))
	for _, entry := range s.entries[collectionID] {
		entries = append(entries, cloneEntry(entry))
	}

	return entries, nil
}

// AppendTranscript appends a finalized segment to the session's transcript log.
func (s *MemoryStore) AppendTranscript(ctx context.Context, sessionID string, seg TranscriptSegment) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[sessionID] = append(s.transcripts[sessionID], seg)
	return nil
}

// Transcript returns a session's transcript segments in append order.
func (s *MemoryStore) Transcript(ctx context.Context, sessionID string) ([]TranscriptSegment, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	segs := s.transcripts[sessionID]
	if len(segs) == 0 {
		return nil, nil
	}

	out := make([]TranscriptSegment, len(segs))
	copy(out, segs)
	return out, nil
}

// cloneTask copies a task so callers cannot mutate stored state.
func cloneTask(task *Task) *Task {
	taskCopy := *task
	if task.CompletedAt != nil {
		completed := *task.CompletedAt
		taskCopy.CompletedAt = &completed
	}
	return &taskCopy
}

// cloneEntry copies an entry, including its fields map.
func cloneEntry(entry *Entry) *Entry {
	entryCopy := *entry
	if entry.Fields != nil {
		entryCopy.Fields = make(map[string]string, len(entry.Fields))
		for k, v := range entry.Fields {
			entryCopy.Fields[k] = v
		}
	}
	return &entryCopy
}
