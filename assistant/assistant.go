// Package assistant provides the built-in tool set for task and collection
// management plus smart note capture. Handlers delegate every side effect to
// the store; the capture handler additionally consults a classification
// oracle to route free text into the right collection.
package assistant

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/AltairaLabs/RelayKit/classify"
	"github.com/AltairaLabs/RelayKit/store"
	"github.com/AltairaLabs/RelayKit/tools"
)

// Built-in tool names.
const (
	ToolCreateTask       = "create_task"
	ToolCompleteTask     = "complete_task"
	ToolListTasks        = "list_tasks"
	ToolCreateCollection = "create_collection"
	ToolCreateEntry      = "create_collection_entry"
	ToolCaptureNote      = "capture_note"
)

// FallbackCollection receives captured notes when classification is
// unavailable or inconsistent.
const FallbackCollection = "inbox"

// ErrNoHandler is returned when a manifest names a tool without a built-in
// handler.
var ErrNoHandler = errors.New("no built-in handler for tool")

//go:embed manifests/*.yaml
var manifestFS embed.FS

// Assistant binds the built-in handlers to their collaborators.
type Assistant struct {
	store  store.Store
	oracle classify.Oracle

	oracleFailures atomic.Int64
}

// New creates an assistant over the given store. The oracle may be nil, in
// which case every captured note lands in the fallback collection.
func New(st store.Store, oracle classify.Oracle) *Assistant {
	return &Assistant{store: st, oracle: oracle}
}

// OracleFailures reports how many captures fell back to the inbox because
// classification failed.
func (a *Assistant) OracleFailures() int64 {
	return a.oracleFailures.Load()
}

// Handlers maps each built-in tool name to its handler.
func (a *Assistant) Handlers() map[string]tools.Handler {
	return map[string]tools.Handler{
		ToolCreateTask:       a.createTask,
		ToolCompleteTask:     a.completeTask,
		ToolListTasks:        a.listTasks,
		ToolCreateCollection: a.createCollection,
		ToolCreateEntry:      a.createEntry,
		ToolCaptureNote:      a.captureNote,
	}
}

// DefaultToolConfigs parses the embedded manifest for every built-in tool,
// in name order.
func DefaultToolConfigs() ([]*tools.ToolConfig, error) {
	entries, err := manifestFS.ReadDir("manifests")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded manifests: %w", err)
	}

	configs := make([]*tools.ToolConfig, 0, len(entries))
	for _, entry := range entries {
		data, err := manifestFS.ReadFile(path.Join("manifests", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded manifest %s: %w", entry.Name(), err)
		}
		cfg, err := tools.ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("embedded manifest %s: %w", entry.Name(), err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Register binds every built-in tool to the registry using the embedded
// manifests.
func (a *Assistant) Register(reg *tools.Registry) error {
	configs, err := DefaultToolConfigs()
	if err != nil {
		return err
	}
	return a.register(reg, configs)
}

// RegisterManifestDir loads every YAML manifest under dir and binds each to
// its built-in handler. Registering a name again replaces the embedded
// default, so a deployment can override schemas and timeouts without
// touching code.
func (a *Assistant) RegisterManifestDir(reg *tools.Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read manifest directory: %w", err)
	}

	var configs []*tools.ToolConfig
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read manifest %s: %w", entry.Name(), err)
		}
		cfg, err := tools.ParseManifest(data)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", entry.Name(), err)
		}
		configs = append(configs, cfg)
	}
	return a.register(reg, configs)
}

func (a *Assistant) register(reg *tools.Registry, configs []*tools.ToolConfig) error {
	handlers := a.Handlers()
	for _, cfg := range configs {
		handler, ok := handlers[cfg.Spec.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoHandler, cfg.Spec.Name)
		}
		spec := cfg.Spec
		if err := reg.Register(&spec, handler); err != nil {
			return fmt.Errorf("failed to register %s: %w", cfg.Spec.Name, err)
		}
	}
	return nil
}

// Instructions returns the default system prompt for sessions using the
// built-in tool set.
func Instructions() string {
	return "You are a hands-free personal assistant. Manage the user's " +
		"tasks and collections with the provided tools: create and complete " +
		"tasks, list what is open, and file noteworthy things the user says " +
		"with capture_note. Confirm each action briefly in one sentence. " +
		"When a tool reports a failure, tell the user what went wrong and " +
		"ask how to proceed instead of retrying on your own."
}
