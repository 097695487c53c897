package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/store"
)

func (a *Assistant) createCollection(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid create_collection arguments: %w", err)
	}

	col, err := a.store.CreateCollection(ctx, in.Name)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("collection %q already exists", in.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	logger.Info("assistant: collection created", "collection", col.Name)
	return json.Marshal(map[string]any{
		"success":       true,
		"collection_id": col.ID,
		"name":          col.Name,
	})
}

func (a *Assistant) createEntry(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		CollectionName string            `json:"collection_name"`
		Text           string            `json:"text"`
		Fields         map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid create_collection_entry arguments: %w", err)
	}

	col, err := a.store.GetCollectionByName(ctx, in.CollectionName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no collection named %q, create it first", in.CollectionName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection: %w", err)
	}

	entry, err := a.store.CreateEntry(ctx, col.ID, store.EntrySpec{
		Text:   in.Text,
		Fields: in.Fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	logger.Info("assistant: entry created", "collection", col.Name, "entry_id", entry.ID)
	return json.Marshal(map[string]any{
		"success":    true,
		"entry_id":   entry.ID,
		"collection": col.Name,
	})
}
