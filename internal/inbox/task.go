package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// TaskCreationResult is the outcome of deriving a task from an item.
type TaskCreationResult struct {
	Task   model.Task
	Upsert model.UpsertKind

	// Notification is set for tracker tasks sitting in the tracker's inbox
	// when the connection asks for it.
	Notification *model.Notification
}

// TaskService derives tasks from items and keeps them in step with the
// sink tracker.
type TaskService struct {
	registry      *source.Registry
	items         *ThirdPartyItemService
	notifications *NotificationService
}

// SyncTaskFromItem derives the task of a synced item through its
// provider's task source.
func (s *TaskService) SyncTaskFromItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*TaskCreationResult, error) {
	src, err := s.registry.TaskSource(item.Provider())
	if err != nil {
		return nil, err
	}
	return s.CreateTaskFromThirdPartyItem(ctx, tx, item, src, userID)
}

// CreateTaskFromThirdPartyItem stores the task src derives from item. It
// returns nil when src declines the item.
//
// An active task from a provider that is not a tracker is mirrored into
// the sink when it is created or reopened without a sink item. A status
// change of an existing task is applied to its sink first; when the sink
// fails, the stored task is left as it was, and when the sink does not
// support the change, the task keeps the sink's status. A tracker item
// mirroring another task updates that task's status instead.
func (s *TaskService) CreateTaskFromThirdPartyItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	src source.TaskSource,
	userID string,
) (*TaskCreationResult, error) {
	if s.registry.IsTaskSink(item.Provider()) {
		mirrored, err := tx.GetTaskBySinkItemID(ctx, item.ID)
		switch {
		case err == nil:
			return s.updateTaskFromSink(ctx, tx, *mirrored, item, src, userID)
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	req, err := src.ThirdPartyItemIntoTask(ctx, tx, item, userID)
	if err != nil {
		return nil, fmt.Errorf("deriving task from %s item %s: %w", item.Kind(), item.SourceID, err)
	}
	if req == nil {
		return nil, nil
	}

	existing, err := tx.GetTaskBySourceItemID(ctx, item.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	task := model.Task{
		Title:       req.Title,
		Body:        req.Body,
		Status:      req.Status,
		CompletedAt: req.CompletedAt,
		Priority:    req.Priority,
		DueAt:       req.DueAt,
		Tags:        req.Tags,
		ParentID:    req.ParentID,
		Project:     req.Project,
		IsRecurring: req.IsRecurring,
		UserID:      userID,
		Kind:        req.Kind,
		SourceItem:  req.SourceItem,
		SinkItem:    req.SinkItem,
	}

	if existing != nil && existing.Status != task.Status &&
		existing.SinkItem != nil && existing.SinkItem.ID != item.ID {
		err := s.applyStatusTo(ctx, tx, *existing.SinkItem, task.Status, userID)
		switch {
		case source.IsUnsupportedAction(err):
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("kind", string(item.Kind())).
				Str("source_id", item.SourceID).
				Str("status", string(task.Status)).
				Msg("sink cannot follow the source status, task keeps the sink status")
			task.Status = existing.Status
			task.CompletedAt = existing.CompletedAt
		case err != nil:
			return nil, err
		}
	}

	status, err := tx.CreateOrUpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	result := &TaskCreationResult{Task: status.Value(), Upsert: status.Kind}

	reopened := existing != nil && existing.Status != model.TaskActive
	if s.items.sinkKind != "" && (status.IsCreated() || reopened) &&
		result.Task.Status == model.TaskActive && result.Task.SinkItem == nil {
		_, err := s.items.CreateSinkItemFromTask(ctx, tx, &result.Task, false)
		switch {
		case source.IsAuthError(err):
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("kind", string(item.Kind())).
				Str("source_id", item.SourceID).
				Msg("sink not connected, task kept without sink item")
		case err != nil:
			return nil, err
		}
	}

	if s.registry.IsTaskSink(item.Provider()) {
		n, err := s.syncInboxNotification(ctx, tx, result.Task, item, userID)
		if err != nil {
			return nil, err
		}
		result.Notification = n
	}

	if status.IsModified() {
		log.Debug().
			Str("user_id", userID).
			Str("kind", string(item.Kind())).
			Str("source_id", item.SourceID).
			Stringer("upsert", status.Kind).
			Msg("saved task")
	}
	return result, nil
}

// updateTaskFromSink carries a status change made in the sink tracker
// over to the task it mirrors and to the task's source.
func (s *TaskService) updateTaskFromSink(
	ctx context.Context,
	tx *store.Tx,
	task model.Task,
	sinkItem model.ThirdPartyItem,
	sink source.TaskSource,
	userID string,
) (*TaskCreationResult, error) {
	req, err := sink.ThirdPartyItemIntoTask(ctx, tx, sinkItem, userID)
	if err != nil {
		return nil, fmt.Errorf("deriving task from %s item %s: %w", sinkItem.Kind(), sinkItem.SourceID, err)
	}
	if req == nil || req.Status == task.Status {
		return &TaskCreationResult{Task: task, Upsert: model.UpsertUntouched}, nil
	}

	if src, err := s.registry.TaskSource(task.SourceItem.Provider()); err == nil {
		err := applyStatus(ctx, tx, src, task.SourceItem, req.Status, userID)
		switch {
		case source.IsUnsupportedAction(err):
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("kind", string(task.SourceItem.Kind())).
				Str("source_id", task.SourceItem.SourceID).
				Msg("source cannot follow the sink status")
		case err != nil:
			return nil, err
		}
	}

	status, err := tx.UpdateTask(ctx, task.ID, model.TaskPatch{Status: &req.Status})
	if err != nil {
		return nil, err
	}
	return &TaskCreationResult{Task: status.Value(), Upsert: status.Kind}, nil
}

// syncInboxNotification keeps the notification of a tracker task in step
// with its presence in the tracker's inbox project.
func (s *TaskService) syncInboxNotification(
	ctx context.Context,
	tx *store.Tx,
	task model.Task,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	conn, err := tx.GetIntegrationConnection(ctx, item.IntegrationConnectionID)
	if err != nil {
		return nil, err
	}
	enabled := createNotificationFromInboxTask(conn.Config)

	existing, err := tx.GetNotificationBySourceItemID(ctx, item.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !enabled && existing == nil {
		return nil, nil
	}

	sink, err := s.registry.TaskSink(item.Provider())
	if err != nil {
		return nil, err
	}
	inInbox, err := sink.IsInInbox(ctx, tx, item, userID)
	if err != nil {
		return nil, err
	}

	if enabled && inInbox {
		src, err := s.registry.NotificationSource(item.Provider())
		if err != nil {
			return nil, err
		}
		status, err := s.notifications.CreateNotificationFromThirdPartyItem(ctx, tx, item, src, userID)
		if err != nil || status == nil {
			return nil, err
		}
		n := status.Value()
		if n.TaskID == nil || *n.TaskID != task.ID {
			linked, err := s.notifications.LinkNotificationToTask(ctx, tx, n.ID, task.ID)
			if err != nil {
				return nil, err
			}
			n = linked.Value()
		}
		return &n, nil
	}

	if existing == nil || existing.Status == model.NotificationDeleted {
		return nil, nil
	}
	deleted := model.NotificationDeleted
	status, err := tx.UpdateNotification(ctx, existing.ID, model.NotificationPatch{Status: &deleted})
	if err != nil {
		return nil, err
	}
	n := status.Value()
	return &n, nil
}

func createNotificationFromInboxTask(config model.IntegrationConnectionConfig) bool {
	switch {
	case config.Todoist != nil:
		return config.Todoist.CreateNotificationFromInboxTask
	case config.TickTick != nil:
		return config.TickTick.CreateNotificationFromInboxTask
	}
	return false
}

// SaveTaskFromEvent stores the item a webhook event carries and derives
// its task. It returns nil for events the user caused and for events
// whose item is already up to date.
func (s *TaskService) SaveTaskFromEvent(
	ctx context.Context,
	tx *store.Tx,
	event source.Event,
	conn model.IntegrationConnection,
	userID string,
) (*TaskCreationResult, error) {
	item, err := itemFromEvent(ctx, tx, s.registry, event, conn, userID)
	if err != nil || item == nil {
		return nil, err
	}
	return s.SyncTaskFromItem(ctx, tx, *item, userID)
}

// GetTask returns a task of userID.
func (s *TaskService) GetTask(ctx context.Context, tx *store.Tx, id, userID string) (*model.Task, error) {
	task, err := tx.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, fmt.Errorf("task %s: %w", id, ErrForbidden)
	}
	return task, nil
}

func (s *TaskService) ListTasks(ctx context.Context, tx *store.Tx, filter model.TaskFilter) ([]model.Task, error) {
	return tx.ListTasks(ctx, filter)
}

// SearchProjects returns the sink tracker projects of userID whose name
// contains pattern.
func (s *TaskService) SearchProjects(
	ctx context.Context,
	tx *store.Tx,
	pattern, userID string,
) ([]model.ProjectSummary, error) {
	if s.items.sinkKind == "" {
		return nil, errors.New("no task sink configured")
	}
	sink, err := s.registry.TaskSink(s.items.sinkKind)
	if err != nil {
		return nil, err
	}
	projects, err := sink.SearchProjects(ctx, tx, pattern, userID)
	if err != nil {
		return nil, fmt.Errorf("searching %s projects: %w", s.items.sinkKind, err)
	}
	return projects, nil
}

// PatchTask updates a task of userID. A status change is applied to the
// task's sink and, once the sink accepted it, to its source. Content
// changes go to the sink. The local row is only written once the
// providers accepted them.
func (s *TaskService) PatchTask(
	ctx context.Context,
	tx *store.Tx,
	id string,
	patch model.TaskPatch,
	userID string,
) (model.UpsertStatus[model.Task], error) {
	var none model.UpsertStatus[model.Task]

	task, err := s.GetTask(ctx, tx, id, userID)
	if err != nil {
		return none, err
	}
	if patch.IsEmpty() {
		return model.Untouched(*task), nil
	}

	ownSink := task.SinkItem != nil && task.SinkItem.ID == task.SourceItem.ID

	if patch.Status != nil && *patch.Status != task.Status {
		if task.SinkItem != nil {
			if err := s.applyStatusTo(ctx, tx, *task.SinkItem, *patch.Status, userID); err != nil {
				return none, err
			}
		}
		if !ownSink {
			if src, err := s.registry.TaskSource(task.SourceItem.Provider()); err == nil {
				err := applyStatus(ctx, tx, src, task.SourceItem, *patch.Status, userID)
				switch {
				case source.IsUnsupportedAction(err) && task.SinkItem != nil:
					log.Warn().Err(err).
						Str("user_id", userID).
						Str("kind", string(task.SourceItem.Kind())).
						Str("source_id", task.SourceItem.SourceID).
						Msg("source cannot follow the sink status")
				case err != nil:
					return none, err
				}
			}
		}
	}

	content := patch
	content.Status = nil
	content.SinkItemID = nil
	if task.SinkItem != nil && !content.IsEmpty() {
		sink, err := s.registry.TaskSource(task.SinkItem.Provider())
		if err != nil {
			return none, err
		}
		if err := sink.UpdateTask(ctx, tx, *task.SinkItem, content, userID); err != nil {
			return none, fmt.Errorf("updating %s task %s: %w", task.SinkItem.Provider(), task.SinkItem.SourceID, err)
		}
	}

	status, err := tx.UpdateTask(ctx, id, patch)
	if err != nil {
		return none, err
	}
	if status.IsModified() {
		log.Info().
			Str("user_id", userID).
			Str("kind", string(task.SourceItem.Kind())).
			Str("source_id", task.SourceItem.SourceID).
			Str("status", string(status.Value().Status)).
			Msg("patched task")
	}
	return status, nil
}

func (s *TaskService) applyStatusTo(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	status model.TaskStatus,
	userID string,
) error {
	src, err := s.registry.TaskSource(item.Provider())
	if err != nil {
		return err
	}
	return applyStatus(ctx, tx, src, item, status, userID)
}

func applyStatus(
	ctx context.Context,
	tx *store.Tx,
	src source.TaskSource,
	item model.ThirdPartyItem,
	status model.TaskStatus,
	userID string,
) error {
	var err error
	switch status {
	case model.TaskDone:
		err = src.CompleteTask(ctx, tx, item, userID)
	case model.TaskActive:
		err = src.UncompleteTask(ctx, tx, item, userID)
	case model.TaskDeleted:
		err = src.DeleteTask(ctx, tx, item, userID)
	}
	if err != nil {
		return fmt.Errorf("marking %s task %s as %s: %w", item.Provider(), item.SourceID, status, err)
	}
	return nil
}
