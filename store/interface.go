// Package store provides persistence for assistant domain records:
// tasks, collections, collection entries, and session transcripts.
package store

import (
	"context"
	"errors"
)

// Store defines the interface for persistent domain record storage.
type Store interface {
	// CreateTask persists a new task built from the given spec.
	// The record ID and creation timestamp are assigned by the store.
	CreateTask(ctx context.Context, spec TaskSpec) (*Task, error)

	// CompleteTask marks a task done and records the completion time.
	// Completing an already-done task is a no-op that returns the stored
	// record unchanged. Returns ErrNotFound if the task doesn't exist.
	CompleteTask(ctx context.Context, id string) (*Task, error)

	// ListTasks returns tasks matching the given criteria, newest first.
	// Done tasks are excluded unless opts.IncludeDone is set.
	ListTasks(ctx context.Context, opts ListTasksOptions) ([]*Task, error)

	// CreateCollection creates a named collection.
	// Names are unique. Returns ErrConflict if the name is already taken.
	CreateCollection(ctx context.Context, name string) (*Collection, error)

	// GetCollectionByName looks up a collection by its name.
	// Returns ErrNotFound if no collection has that name.
	GetCollectionByName(ctx context.Context, name string) (*Collection, error)

	// CreateEntry adds an entry to the given collection.
	// Returns ErrNotFound if the collection doesn't exist and ErrConflict
	// if the spec carries an entry ID that is already taken.
	CreateEntry(ctx context.Context, collectionID string, spec EntrySpec) (*Entry, error)

	// ListEntries returns a collection's entries in creation order.
	// Returns ErrNotFound if the collection doesn't exist.
	ListEntries(ctx context.Context, collectionID string) ([]*Entry, error)

	// AppendTranscript appends a finalized segment to the session's
	// transcript log. The log is created on first append.
	AppendTranscript(ctx context.Context, sessionID string, seg TranscriptSegment) error

	// Transcript returns a session's transcript segments in append order.
	// Returns nil (not an error) if no transcript exists.
	Transcript(ctx context.Context, sessionID string) ([]TranscriptSegment, error)
}

// ListTasksOptions provides filtering options for listing tasks.
type ListTasksOptions struct {
	// IncludeDone includes completed tasks in the listing.
	// If false, only open tasks are returned.
	IncludeDone bool

	// Priority filters tasks to a single priority level.
	// If empty, tasks of all priorities are returned.
	Priority string

	// Limit is the maximum number of tasks to return.
	// If 0, a default limit of 100 is applied.
	Limit int
}

// ErrNotFound is returned when a referenced record doesn't exist in the store.
var ErrNotFound = errors.New("record not found")

// ErrInvalidID is returned when an empty record ID or name is provided.
var ErrInvalidID = errors.New("invalid record ID")

// ErrConflict is returned when a create collides with an existing record.
var ErrConflict = errors.New("record already exists")
