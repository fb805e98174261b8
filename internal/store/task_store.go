package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/universal-inbox/internal/model"
)

const taskColumns = `id, title, body, status, completed_at, priority, due_at, tags,
	parent_id, project, is_recurring, user_id, kind, source_item_id, sink_item_id,
	created_at, updated_at`

type taskRow struct {
	ID           string     `db:"id"`
	Title        string     `db:"title"`
	Body         string     `db:"body"`
	Status       string     `db:"status"`
	CompletedAt  *time.Time `db:"completed_at"`
	Priority     int        `db:"priority"`
	DueAt        *string    `db:"due_at"`
	Tags         string     `db:"tags"`
	ParentID     *string    `db:"parent_id"`
	Project      string     `db:"project"`
	IsRecurring  int        `db:"is_recurring"`
	UserID       string     `db:"user_id"`
	Kind         string     `db:"kind"`
	SourceItemID string     `db:"source_item_id"`
	SinkItemID   *string    `db:"sink_item_id"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (t *Tx) toTask(ctx context.Context, row taskRow) (model.Task, error) {
	task := model.Task{
		ID:          row.ID,
		Title:       row.Title,
		Body:        row.Body,
		Status:      model.TaskStatus(row.Status),
		CompletedAt: row.CompletedAt,
		Priority:    model.ParseTaskPriority(row.Priority),
		ParentID:    row.ParentID,
		Project:     row.Project,
		IsRecurring: row.IsRecurring != 0,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		UserID:      row.UserID,
		Kind:        model.IntegrationProviderKind(row.Kind),
	}

	if row.DueAt != nil {
		var due model.DueDate
		if err := json.Unmarshal([]byte(*row.DueAt), &due); err != nil {
			return model.Task{}, fmt.Errorf("unmarshaling due_at of task %s: %w", row.ID, err)
		}
		task.DueAt = &due
	}
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &task.Tags); err != nil {
			return model.Task{}, fmt.Errorf("unmarshaling tags of task %s: %w", row.ID, err)
		}
	}

	sourceItem, err := t.GetThirdPartyItem(ctx, row.SourceItemID)
	if err != nil {
		return model.Task{}, fmt.Errorf("loading source item of task %s: %w", row.ID, err)
	}
	task.SourceItem = *sourceItem

	if row.SinkItemID != nil {
		if *row.SinkItemID == row.SourceItemID {
			task.SinkItem = sourceItem
		} else {
			sinkItem, err := t.GetThirdPartyItem(ctx, *row.SinkItemID)
			if err != nil {
				return model.Task{}, fmt.Errorf("loading sink item of task %s: %w", row.ID, err)
			}
			task.SinkItem = sinkItem
		}
	}

	return task, nil
}

func (t *Tx) getTaskWhere(ctx context.Context, where string, args ...any) (*model.Task, error) {
	var row taskRow
	err := t.tx.GetContext(ctx, &row, "SELECT "+taskColumns+" FROM tasks WHERE "+where, args...)
	if err != nil {
		return nil, notFound(err)
	}

	task, err := t.toTask(ctx, row)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask retrieves a single task by its ID.
func (t *Tx) GetTask(ctx context.Context, id string) (*model.Task, error) {
	task, err := t.getTaskWhere(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return task, nil
}

// GetTaskBySourceItemID retrieves the task derived from an item.
func (t *Tx) GetTaskBySourceItemID(ctx context.Context, itemID string) (*model.Task, error) {
	task, err := t.getTaskWhere(ctx, "source_item_id = ?", itemID)
	if err != nil {
		return nil, fmt.Errorf("getting task for item %s: %w", itemID, err)
	}
	return task, nil
}

// GetTaskBySinkItemID retrieves the task mirrored by a sink item, excluding
// tasks that are their own sink.
func (t *Tx) GetTaskBySinkItemID(ctx context.Context, itemID string) (*model.Task, error) {
	task, err := t.getTaskWhere(ctx, "sink_item_id = ? AND source_item_id != sink_item_id", itemID)
	if err != nil {
		return nil, fmt.Errorf("getting task for sink item %s: %w", itemID, err)
	}
	return task, nil
}

// ListTasks retrieves tasks matching the filter, most recently updated first.
func (t *Tx) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	conditions := []string{"user_id = ?"}
	args := []any{filter.UserID}

	if len(filter.Statuses) > 0 {
		clause, statuses := inClause(filter.Statuses)
		conditions = append(conditions, "status IN "+clause)
		args = append(args, statuses...)
	}
	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(*filter.Kind))
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []taskRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		task, err := t.toTask(ctx, row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func encodeDueAt(due *model.DueDate) (*string, error) {
	if due == nil {
		return nil, nil
	}
	b, err := json.Marshal(due)
	if err != nil {
		return nil, fmt.Errorf("marshaling due_at: %w", err)
	}
	s := string(b)
	return &s, nil
}

func sameDueAt(a, b *model.DueDate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.AllDay == b.AllDay && a.Time.Equal(b.Time)
}

func sameTask(a, b model.Task) bool {
	return a.Title == b.Title &&
		a.Body == b.Body &&
		a.Status == b.Status &&
		sameTime(a.CompletedAt, b.CompletedAt) &&
		a.Priority == b.Priority &&
		sameDueAt(a.DueAt, b.DueAt) &&
		slices.Equal(a.Tags, b.Tags) &&
		samePtr(a.ParentID, b.ParentID) &&
		a.Project == b.Project &&
		a.IsRecurring == b.IsRecurring &&
		a.Kind == b.Kind &&
		sinkItemID(a) == sinkItemID(b)
}

func sinkItemID(task model.Task) string {
	if task.SinkItem == nil {
		return ""
	}
	return task.SinkItem.ID
}

// CreateOrUpdateTask stores the task derived from its source item. An
// existing task keeps its ID, creation date and, when the new value has
// none, its sink item.
func (t *Tx) CreateOrUpdateTask(ctx context.Context, task model.Task) (model.UpsertStatus[model.Task], error) {
	var none model.UpsertStatus[model.Task]

	if task.SourceItem.ID == "" {
		return none, fmt.Errorf("task %q has no stored source item", task.Title)
	}

	now := time.Now().UTC()
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}

	existing, err := t.GetTaskBySourceItemID(ctx, task.SourceItem.ID)
	if err != nil && !isNotFound(err) {
		return none, err
	}
	if existing != nil {
		task.ID = existing.ID
		task.CreatedAt = existing.CreatedAt
		task.UserID = existing.UserID
		if task.SinkItem == nil {
			task.SinkItem = existing.SinkItem
		}
		if sameTask(*existing, task) {
			return model.Untouched(*existing), nil
		}
	} else {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
	}

	dueAt, err := encodeDueAt(task.DueAt)
	if err != nil {
		return none, err
	}
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return none, fmt.Errorf("marshaling tags: %w", err)
	}
	var sinkID *string
	if task.SinkItem != nil {
		sinkID = &task.SinkItem.ID
	}

	var storedID string
	err = t.tx.GetContext(ctx, &storedID, `
		INSERT INTO tasks (
			id, title, body, status, completed_at, priority, due_at, tags,
			parent_id, project, is_recurring, user_id, kind, source_item_id, sink_item_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_item_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			status = excluded.status,
			completed_at = excluded.completed_at,
			priority = excluded.priority,
			due_at = excluded.due_at,
			tags = excluded.tags,
			parent_id = excluded.parent_id,
			project = excluded.project,
			is_recurring = excluded.is_recurring,
			kind = excluded.kind,
			sink_item_id = excluded.sink_item_id,
			updated_at = excluded.updated_at
		RETURNING id`,
		task.ID, task.Title, task.Body, string(task.Status), utcPtr(task.CompletedAt),
		int(task.Priority), dueAt, string(tags),
		task.ParentID, task.Project, boolToInt(task.IsRecurring), task.UserID, string(task.Kind),
		task.SourceItem.ID, sinkID, task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		return none, fmt.Errorf("upserting task %s: %w", task.ID, err)
	}

	if existing == nil && storedID != task.ID {
		stored, err := t.GetTask(ctx, storedID)
		if err != nil {
			return none, err
		}
		return model.UpsertStatus[model.Task]{Kind: model.UpsertUpdated, New: *stored}, nil
	}
	if existing != nil {
		return model.Updated(*existing, task), nil
	}
	return model.Created(task), nil
}

// UpdateTask applies a partial update. Nil patch fields are left untouched.
func (t *Tx) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.UpsertStatus[model.Task], error) {
	var none model.UpsertStatus[model.Task]

	existing, err := t.GetTask(ctx, id)
	if err != nil {
		return none, err
	}

	var sets []string
	var args []any
	updated := *existing
	now := time.Now().UTC()

	if patch.Status != nil && *patch.Status != existing.Status {
		updated.Status = *patch.Status
		sets = append(sets, "status = ?", "completed_at = ?")
		if updated.Status == model.TaskDone {
			updated.CompletedAt = &now
		} else {
			updated.CompletedAt = nil
		}
		args = append(args, string(updated.Status), updated.CompletedAt)
	}
	if patch.Title != nil && *patch.Title != existing.Title {
		updated.Title = *patch.Title
		sets = append(sets, "title = ?")
		args = append(args, updated.Title)
	}
	if patch.Body != nil && *patch.Body != existing.Body {
		updated.Body = *patch.Body
		sets = append(sets, "body = ?")
		args = append(args, updated.Body)
	}
	if patch.Project != nil && *patch.Project != existing.Project {
		updated.Project = *patch.Project
		sets = append(sets, "project = ?")
		args = append(args, updated.Project)
	}
	if patch.DueAt != nil && !sameDueAt(patch.DueAt, existing.DueAt) {
		updated.DueAt = patch.DueAt
		dueAt, err := encodeDueAt(updated.DueAt)
		if err != nil {
			return none, err
		}
		sets = append(sets, "due_at = ?")
		args = append(args, dueAt)
	}
	if patch.Priority != nil && *patch.Priority != existing.Priority {
		updated.Priority = *patch.Priority
		sets = append(sets, "priority = ?")
		args = append(args, int(updated.Priority))
	}
	if patch.SinkItemID != nil && *patch.SinkItemID != sinkItemID(*existing) {
		sink, err := t.GetThirdPartyItem(ctx, *patch.SinkItemID)
		if err != nil {
			return none, err
		}
		updated.SinkItem = sink
		sets = append(sets, "sink_item_id = ?")
		args = append(args, sink.ID)
	}

	if len(sets) == 0 {
		return model.Untouched(*existing), nil
	}

	updated.UpdatedAt = now
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	_, err = t.tx.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return none, fmt.Errorf("updating task %s: %w", id, err)
	}
	return model.Updated(*existing, updated), nil
}
