package emitter

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
)

// TaskStatus is the lifecycle of a single task row in a task list.
type TaskStatus string

const (
	TaskReady   TaskStatus = "ready"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is one row of a TaskList. ForID links the row to the step that
// produced it so the UI can scroll to it.
type Task struct {
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
	ForID  *uuid.UUID `json:"forId,omitempty"`
}

// TaskList is a mutable tasklist element. Every Send re-serializes the
// current tasks and re-sends the element under the same id, so the UI and
// the stored row both converge on the latest state.
type TaskList struct {
	mu     sync.Mutex
	id     uuid.UUID
	status string
	tasks  []*Task
}

func NewTaskList() *TaskList {
	return &TaskList{id: uuid.New(), status: "Ready"}
}

func (t *TaskList) SetStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

func (t *TaskList) Add(task *Task) {
	t.mu.Lock()
	if task.Status == "" {
		task.Status = TaskReady
	}
	t.tasks = append(t.tasks, task)
	t.mu.Unlock()
}

func (t *TaskList) element(threadID uuid.UUID, content []byte) *types.Element {
	return &types.Element{
		ID:        t.id,
		ThreadID:  threadID,
		Type:      chat.ElementTypeTaskList,
		Name:      "tasklist",
		Display:   chat.ElementDisplaySide,
		Content:   content,
		CreatedAt: chat.ISONow(),
	}
}

// Send pushes the current state of the list to the UI and storage.
func (t *TaskList) Send(ctx context.Context, e *Emitter) error {
	threadID := e.sess.ThreadID()
	if threadID == uuid.Nil {
		return apperrors.Validationf("tasklist needs an active thread")
	}
	t.mu.Lock()
	payload := struct {
		Status string  `json:"status"`
		Tasks  []*Task `json:"tasks"`
	}{Status: t.status, Tasks: t.tasks}
	content, err := json.Marshal(payload)
	t.mu.Unlock()
	if err != nil {
		return apperrors.Validationf("tasklist content is not serializable: %v", err)
	}
	return e.UpdateElement(ctx, t.element(threadID, content))
}

// Remove deletes the tasklist element from the UI and storage.
func (t *TaskList) Remove(ctx context.Context, e *Emitter) error {
	return e.RemoveElement(ctx, t.id)
}
