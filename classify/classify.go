// Package classify routes captured free text into collections.
//
// The Oracle abstracts an external scoring service: given a note, it names
// the collection the note belongs to, whether that collection should be
// created, and any structured fields it could lift out of the text. Oracles
// may be slow and may fail, so they are only consulted from domain handlers
// off the event hot path, and callers treat a failed classification as
// advisory with their own fallback routing.
package classify

import (
	"context"
	"errors"
)

// Classification is the oracle's routing decision for one piece of text.
type Classification struct {
	CollectionName         string            `json:"collection_name"`
	ShouldCreateCollection bool              `json:"should_create_collection"`
	ExtractedFields        map[string]string `json:"extracted_fields,omitempty"`
	Confidence             float64           `json:"confidence,omitempty"`
}

// Oracle classifies free text into a target collection.
type Oracle interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

var (
	// ErrNoCollection is returned when a classification response names no
	// target collection.
	ErrNoCollection = errors.New("classification returned no collection name")

	// ErrNoMatch is returned by the rule oracle when no rule matches and no
	// fallback collection is configured.
	ErrNoMatch = errors.New("no classification rule matched")
)
