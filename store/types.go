package store

import (
	"time"

	"github.com/google/uuid"
)

// Task priority levels.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// defaultListLimit bounds ListTasks results when no limit is given.
const defaultListLimit = 100

// Task is a single actionable item created through the assistant.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Priority    string     `json:"priority"`
	Notes       string     `json:"notes,omitempty"`
	Done        bool       `json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskSpec carries the caller-supplied fields for a new task.
type TaskSpec struct {
	Title    string // Required
	Priority string // Defaults to medium when empty
	Notes    string
}

// Collection groups related entries under a user-facing name.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EntrySpec carries the caller-supplied fields for a new collection entry.
type EntrySpec struct {
	// ID optionally fixes the entry's ID. When empty the store assigns one.
	ID     string
	Text   string
	Fields map[string]string
}

// Entry is a single record inside a collection.
type Entry struct {
	ID           string            `json:"id"`
	CollectionID string            `json:"collection_id"`
	Text         string            `json:"text,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TranscriptSegment is one finalized utterance in a session's transcript log.
type TranscriptSegment struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// newTask builds a Task record from a spec, assigning its ID and timestamp.
func newTask(spec TaskSpec) *Task {
	priority := spec.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	return &Task{
		ID:        uuid.NewString(),
		Title:     spec.Title,
		Priority:  priority,
		Notes:     spec.Notes,
		CreatedAt: time.Now(),
	}
}

// newCollection builds a Collection record, assigning its ID and timestamp.
func newCollection(name string) *Collection {
	return &Collection{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
}

// newEntry builds an Entry record from a spec.
// The spec's Fields map is copied so the caller cannot alias stored state.
func newEntry(collectionID string, spec EntrySpec) *Entry {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	entry := &Entry{
		ID:           id,
		CollectionID: collectionID,
		Text:         spec.Text,
		CreatedAt:    time.Now(),
	}
	if len(spec.Fields) > 0 {
		entry.Fields = make(map[string]string, len(spec.Fields))
		for k, v := range spec.Fields {
			entry.Fields[k] = v
		}
	}
	return entry
}

// taskMatches reports whether a task passes the listing filters.
func taskMatches(task *Task, opts ListTasksOptions) bool {
	if task.Done && !opts.IncludeDone {
		return false
	}
	if opts.Priority != "" && task.Priority != opts.Priority {
		return false
	}
	return true
}
