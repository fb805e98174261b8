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

// NotificationService derives notifications from items and applies the
// user's triage upstream.
type NotificationService struct {
	registry *source.Registry
	items    *ThirdPartyItemService
	now      func() time.Time
}

// CreateNotificationFromThirdPartyItem stores the notification src derives
// from item. It returns nil when src declines the item. A stored snooze
// is kept unless src tracks snoozes itself.
func (s *NotificationService) CreateNotificationFromThirdPartyItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	src source.NotificationSource,
	userID string,
) (*model.UpsertStatus[model.Notification], error) {
	n, err := src.ThirdPartyItemIntoNotification(ctx, tx, item, userID)
	if err != nil {
		return nil, fmt.Errorf("deriving notification from %s item %s: %w", item.Kind(), item.SourceID, err)
	}
	if n == nil {
		return nil, nil
	}

	status, err := tx.CreateOrUpdateNotification(ctx, *n, src.IsSupportingSnoozedNotifications())
	if err != nil {
		return nil, err
	}
	if status.IsModified() {
		log.Debug().
			Str("user_id", userID).
			Str("kind", string(item.Kind())).
			Str("source_id", item.SourceID).
			Stringer("upsert", status.Kind).
			Msg("saved notification")
	}
	return &status, nil
}

// SyncNotificationFromItem derives the notification of a synced item. An
// item another provider can promote, such as a mail carrying a calendar
// invitation, produces the promoted item's notification instead. When the
// promoting provider is not connected, the original item is used.
func (s *NotificationService) SyncNotificationFromItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.UpsertStatus[model.Notification], error) {
	if deriver, ok := s.registry.Deriver(item.Kind()); ok {
		derived, err := deriver.DeriveItem(ctx, tx, item, userID)
		switch {
		case source.IsAuthError(err):
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("provider", string(deriver.Kind())).
				Str("source_id", item.SourceID).
				Msg("cannot derive item, keeping the original notification")
		case err != nil:
			return nil, err
		case derived != nil:
			stored, err := tx.CreateOrUpdateThirdPartyItem(ctx, *derived)
			if err != nil {
				return nil, err
			}
			src, err := s.registry.NotificationSource(deriver.Kind())
			if err != nil {
				return nil, err
			}
			return s.CreateNotificationFromThirdPartyItem(ctx, tx, stored.Value(), src, userID)
		}
	}

	src, err := s.registry.NotificationSource(item.Provider())
	if err != nil {
		return nil, err
	}
	return s.CreateNotificationFromThirdPartyItem(ctx, tx, item, src, userID)
}

// SaveNotificationFromEvent stores the item a webhook event carries and
// derives its notification. It returns nil for events the user caused
// and for events whose item is already up to date.
func (s *NotificationService) SaveNotificationFromEvent(
	ctx context.Context,
	tx *store.Tx,
	event source.Event,
	conn model.IntegrationConnection,
	userID string,
) (*model.UpsertStatus[model.Notification], error) {
	item, err := itemFromEvent(ctx, tx, s.registry, event, conn, userID)
	if err != nil || item == nil {
		return nil, err
	}
	return s.SyncNotificationFromItem(ctx, tx, *item, userID)
}

// itemFromEvent fetches and stores the item of event. It returns nil when
// nothing changed.
func itemFromEvent(
	ctx context.Context,
	tx *store.Tx,
	registry *source.Registry,
	event source.Event,
	conn model.IntegrationConnection,
	userID string,
) (*model.ThirdPartyItem, error) {
	if sender := event.Sender(); sender != "" && conn.ProviderUserID != nil && *conn.ProviderUserID == sender {
		log.Debug().
			Str("user_id", userID).
			Str("provider", string(conn.ProviderKind)).
			Str("event", event.EventType()).
			Msg("ignoring event sent by the user")
		return nil, nil
	}

	es, err := registry.EventSource(conn.ProviderKind)
	if err != nil {
		return nil, err
	}
	item, err := es.FetchItemFromEvent(ctx, tx, event, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching item of %s event: %w", event.EventType(), err)
	}
	if item == nil {
		return nil, nil
	}

	status, err := tx.CreateOrUpdateThirdPartyItem(ctx, *item)
	if err != nil {
		return nil, err
	}
	if !status.IsModified() {
		return nil, nil
	}
	return status.ModifiedValue(), nil
}

// GetNotification returns a notification of userID.
func (s *NotificationService) GetNotification(
	ctx context.Context,
	tx *store.Tx,
	id, userID string,
) (*model.Notification, error) {
	n, err := tx.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, ErrForbidden)
	}
	return n, nil
}

// GetNotificationForSourceID returns the notification derived from the
// item with the given provider id.
func (s *NotificationService) GetNotificationForSourceID(
	ctx context.Context,
	tx *store.Tx,
	sourceID, userID string,
) (*model.Notification, error) {
	return tx.GetNotificationForSourceID(ctx, sourceID, userID)
}

// ListNotifications returns the notifications matching filter. Snoozed
// ones are compared against the current time unless filter sets one.
func (s *NotificationService) ListNotifications(
	ctx context.Context,
	tx *store.Tx,
	filter model.NotificationFilter,
) ([]model.Notification, error) {
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}
	return tx.ListNotifications(ctx, filter)
}

// PatchNotification updates a notification of userID. With applyToSource,
// deleting, unsubscribing and snoozing are first applied upstream; the
// local row is only written once the provider accepted them.
func (s *NotificationService) PatchNotification(
	ctx context.Context,
	tx *store.Tx,
	id string,
	patch model.NotificationPatch,
	applyToSource bool,
	userID string,
) (model.UpsertStatus[model.Notification], error) {
	n, err := s.GetNotification(ctx, tx, id, userID)
	if err != nil {
		return model.UpsertStatus[model.Notification]{}, err
	}
	if patch.IsEmpty() {
		return model.Untouched(*n), nil
	}

	if applyToSource {
		if err := s.applyToSource(ctx, tx, *n, patch, userID); err != nil {
			return model.UpsertStatus[model.Notification]{}, err
		}
	}

	status, err := tx.UpdateNotification(ctx, id, patch)
	if err != nil {
		return status, err
	}
	if status.IsModified() {
		log.Info().
			Str("user_id", userID).
			Str("kind", string(n.SourceItem.Kind())).
			Str("source_id", n.SourceItem.SourceID).
			Str("status", string(status.Value().Status)).
			Msg("patched notification")
	}
	return status, nil
}

func (s *NotificationService) applyToSource(
	ctx context.Context,
	tx *store.Tx,
	n model.Notification,
	patch model.NotificationPatch,
	userID string,
) error {
	src, err := s.registry.NotificationSource(n.Kind)
	if err != nil {
		return err
	}

	if patch.Status != nil && *patch.Status != n.Status {
		switch *patch.Status {
		case model.NotificationDeleted:
			err = src.DeleteNotificationFromSource(ctx, tx, n.SourceItem, userID)
		case model.NotificationUnsubscribed:
			err = src.UnsubscribeNotificationFromSource(ctx, tx, n.SourceItem, userID)
		}
		if err != nil {
			return fmt.Errorf("applying %s to %s notification %s: %w", *patch.Status, n.Kind, n.ID, err)
		}
	}

	if patch.SnoozedUntil != nil {
		if err := src.SnoozeNotificationFromSource(ctx, tx, n.SourceItem, *patch.SnoozedUntil, userID); err != nil {
			return fmt.Errorf("snoozing %s notification %s: %w", n.Kind, n.ID, err)
		}
	}
	return nil
}

// DeleteStaleNotificationsStatusFromSourceIDs deletes the user's pending
// notifications of kind whose item is missing from activeItemIDs.
func (s *NotificationService) DeleteStaleNotificationsStatusFromSourceIDs(
	ctx context.Context,
	tx *store.Tx,
	activeItemIDs []string,
	kind model.ThirdPartyItemKind,
	userID string,
) ([]model.Notification, error) {
	stale, err := tx.UpdateStaleNotificationsStatus(ctx, activeItemIDs, kind, model.NotificationDeleted, userID)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		log.Debug().
			Str("user_id", userID).
			Str("kind", string(kind)).
			Int("count", len(stale)).
			Msg("deleted stale notifications")
	}
	return stale, nil
}

// LinkNotificationToTask records the task created from the same item as a
// notification.
func (s *NotificationService) LinkNotificationToTask(
	ctx context.Context,
	tx *store.Tx,
	notificationID, taskID string,
) (model.UpsertStatus[model.Notification], error) {
	return tx.UpdateNotification(ctx, notificationID, model.NotificationPatch{TaskID: &taskID})
}
