package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/store"
)

func (a *Assistant) createTask(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
		Notes    string `json:"notes"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid create_task arguments: %w", err)
	}

	task, err := a.store.CreateTask(ctx, store.TaskSpec{
		Title:    in.Title,
		Priority: in.Priority,
		Notes:    in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.Info("assistant: task created", "task_id", task.ID, "priority", task.Priority)
	return json.Marshal(map[string]any{
		"success":  true,
		"task_id":  task.ID,
		"title":    task.Title,
		"priority": task.Priority,
	})
}

func (a *Assistant) completeTask(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid complete_task arguments: %w", err)
	}

	task, err := a.store.CompleteTask(ctx, in.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no task with id %s", in.TaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	logger.Info("assistant: task completed", "task_id", task.ID)
	return json.Marshal(map[string]any{
		"success": true,
		"task_id": task.ID,
		"title":   task.Title,
		"done":    task.Done,
	})
}

func (a *Assistant) listTasks(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		IncludeDone bool   `json:"include_done"`
		Priority    string `json:"priority"`
		Limit       int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid list_tasks arguments: %w", err)
	}

	tasks, err := a.store.ListTasks(ctx, store.ListTasksOptions{
		IncludeDone: in.IncludeDone,
		Priority:    in.Priority,
		Limit:       in.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return json.Marshal(map[string]any{
		"success": true,
		"count":   len(tasks),
		"tasks":   tasks,
	})
}
