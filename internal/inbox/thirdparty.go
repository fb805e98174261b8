package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// ItemHandler derives notifications or tasks from an item that was just
// created or updated.
type ItemHandler func(item model.ThirdPartyItem) error

// SyncResult counts what a SyncItems run did.
type SyncResult struct {
	Fetched  int
	Modified int
	Stale    int
}

// ThirdPartyItemService stores provider items and keeps them in step with
// the providers' listings.
type ThirdPartyItemService struct {
	registry      *source.Registry
	conns         source.Connections
	sinkKind      model.IntegrationProviderKind
	notifications *NotificationService
	tasks         *TaskService
	now           func() time.Time
}

// CreateOrUpdateThirdPartyItem stores item. Content equal to the stored
// row is reported as untouched.
func (s *ThirdPartyItemService) CreateOrUpdateThirdPartyItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
) (model.UpsertStatus[model.ThirdPartyItem], error) {
	return tx.CreateOrUpdateThirdPartyItem(ctx, item)
}

// SyncItems fetches the items of src and stores them. Every created or
// updated item goes through handle inside its own savepoint, so a failing
// item leaves nothing behind and stops the run. Items processed before
// stay written.
//
// After a full listing, items that disappeared are stale: their
// notifications are deleted, and for tasks the item is marked as done and
// handled again.
func (s *ThirdPartyItemService) SyncItems(
	ctx context.Context,
	tx *store.Tx,
	src source.ItemSource,
	syncType model.SyncType,
	userID string,
	lastSyncCompletedAt *time.Time,
	handle ItemHandler,
) (SyncResult, error) {
	var result SyncResult
	kind := src.ItemKind()

	items, err := src.FetchItems(ctx, tx, userID, lastSyncCompletedAt)
	if err != nil {
		return result, err
	}
	result.Fetched = len(items)

	activeIDs := make([]string, 0, len(items))
	for _, item := range items {
		id, modified, err := s.storeAndHandle(ctx, tx, item, handle)
		if err != nil {
			return result, fmt.Errorf("syncing %s item %s: %w", kind, item.SourceID, err)
		}
		if modified {
			result.Modified++
		}
		activeIDs = append(activeIDs, id)
	}

	if src.IsSyncIncremental() {
		return result, nil
	}

	switch syncType {
	case model.SyncNotifications:
		stale, err := s.notifications.DeleteStaleNotificationsStatusFromSourceIDs(ctx, tx, activeIDs, kind, userID)
		if err != nil {
			return result, err
		}
		result.Stale = len(stale)

	case model.SyncTasks:
		stale, err := tx.GetStaleTaskSourceItems(ctx, activeIDs, kind, userID)
		if err != nil {
			return result, err
		}
		for _, item := range stale {
			_, modified, err := s.storeAndHandle(ctx, tx, item.MarkedAsDone(s.now()), handle)
			if err != nil {
				return result, fmt.Errorf("closing stale %s item %s: %w", kind, item.SourceID, err)
			}
			if modified {
				result.Stale++
			}
		}
	}

	log.Debug().
		Str("user_id", userID).
		Str("kind", string(kind)).
		Int("count", result.Fetched).
		Int("modified", result.Modified).
		Int("stale", result.Stale).
		Msg("synced third party items")
	return result, nil
}

func (s *ThirdPartyItemService) storeAndHandle(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	handle ItemHandler,
) (string, bool, error) {
	var id string
	var modified bool
	err := tx.Savepoint(ctx, func() error {
		status, err := tx.CreateOrUpdateThirdPartyItem(ctx, item)
		if err != nil {
			return err
		}
		id = status.Value().ID
		if !status.IsModified() {
			return nil
		}
		modified = true
		return handle(status.Value())
	})
	return id, modified, err
}

// CreateTaskItem stores item and promotes it to a task through its
// provider's task source.
func (s *ThirdPartyItemService) CreateTaskItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*TaskCreationResult, error) {
	src, err := s.registry.TaskSource(item.Provider())
	if err != nil {
		return nil, err
	}
	status, err := tx.CreateOrUpdateThirdPartyItem(ctx, item)
	if err != nil {
		return nil, err
	}
	return s.tasks.CreateTaskFromThirdPartyItem(ctx, tx, status.Value(), src, userID)
}

// CreateSinkItemFromTask mirrors task into the sink tracker and links the
// created item to it. A task already mirrored keeps its sink item unless
// overwrite is set.
func (s *ThirdPartyItemService) CreateSinkItemFromTask(
	ctx context.Context,
	tx *store.Tx,
	task *model.Task,
	overwrite bool,
) (*model.ThirdPartyItem, error) {
	if task.SinkItem != nil && !overwrite {
		return task.SinkItem, nil
	}

	sink, err := s.registry.TaskSink(s.sinkKind)
	if err != nil {
		return nil, err
	}
	// Fails early with an AuthError when the sink is not connected.
	if _, err := source.RequireAccessToken(ctx, s.conns, tx, s.sinkKind, task.UserID); err != nil {
		return nil, err
	}

	projectName := task.Project
	if projectName == "" {
		projectName = inboxProjectName(s.sinkKind)
	}
	project, err := sink.GetOrCreateProject(ctx, tx, projectName, task.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s project %q: %w", s.sinkKind, projectName, err)
	}

	created, err := sink.CreateTask(ctx, tx, model.TaskCreation{
		Title:    task.Title,
		Body:     task.Body,
		Project:  project,
		DueAt:    task.DueAt,
		Priority: task.Priority,
	}, task.UserID)
	if err != nil {
		return nil, fmt.Errorf("creating %s task for task %s: %w", s.sinkKind, task.ID, err)
	}

	status, err := tx.CreateOrUpdateThirdPartyItem(ctx, *created)
	if err != nil {
		return nil, err
	}
	item := status.Value()

	if _, err := tx.UpdateTask(ctx, task.ID, model.TaskPatch{SinkItemID: &item.ID}); err != nil {
		return nil, err
	}
	task.SinkItem = &item

	log.Debug().
		Str("user_id", task.UserID).
		Str("provider", string(s.sinkKind)).
		Str("source_id", item.SourceID).
		Msg("created sink item for task")
	return &item, nil
}

func inboxProjectName(kind model.IntegrationProviderKind) string {
	if kind == model.ProviderTickTick {
		return model.TickTickInboxProject
	}
	return model.TodoistInboxProject
}
