package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/store"
)

// captureNote files free text into a collection chosen by the oracle.
// Classification is advisory: when it is unavailable, errors out, or names
// a collection that may not be created, the note lands in the fallback
// collection so the capture itself never fails for oracle reasons.
func (a *Assistant) captureNote(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid capture_note arguments: %w", err)
	}

	name := FallbackCollection
	mayCreate := true
	var fields map[string]string

	if a.oracle == nil {
		logger.Debug("assistant: no classifier configured, routing note to fallback")
	} else if c, err := a.oracle.Classify(ctx, in.Text); err != nil {
		a.oracleFailures.Add(1)
		logger.Warn("assistant: classification failed, routing note to fallback",
			"error", err,
			"failures", a.oracleFailures.Load())
	} else {
		name = c.CollectionName
		mayCreate = c.ShouldCreateCollection
		fields = c.ExtractedFields
	}

	col, created, err := a.ensureCollection(ctx, name, mayCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve collection for note: %w", err)
	}

	entry, err := a.store.CreateEntry(ctx, col.ID, store.EntrySpec{
		Text:   in.Text,
		Fields: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store note: %w", err)
	}

	logger.Info("assistant: note captured",
		"collection", col.Name,
		"entry_id", entry.ID,
		"collection_created", created)
	return json.Marshal(map[string]any{
		"success":            true,
		"collection":         col.Name,
		"entry_id":           entry.ID,
		"collection_created": created,
	})
}

// ensureCollection resolves a collection by name, creating it when allowed.
// A missing collection that may not be created reroutes to the fallback.
// The returned bool reports whether this call created the collection.
func (a *Assistant) ensureCollection(ctx context.Context, name string, mayCreate bool) (*store.Collection, bool, error) {
	col, err := a.store.GetCollectionByName(ctx, name)
	if err == nil {
		return col, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if !mayCreate && name != FallbackCollection {
		logger.Debug("assistant: collection missing and creation not advised, using fallback",
			"collection", name)
		return a.ensureCollection(ctx, FallbackCollection, true)
	}

	col, err = a.store.CreateCollection(ctx, name)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent capture; the collection exists now.
		col, err = a.store.GetCollectionByName(ctx, name)
		if err != nil {
			return nil, false, err
		}
		return col, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return col, true, nil
}
