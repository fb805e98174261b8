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

// HandleEvent applies a webhook event of provider kind for every user it
// concerns: the users it is addressed to, and the owners of the items it
// follows up on. Each connection's settings decide whether the event
// feeds notifications or tasks. A failing user does not keep the others
// from being served.
func (s *Services) HandleEvent(
	ctx context.Context,
	tx *store.Tx,
	kind model.IntegrationProviderKind,
	event source.Event,
) error {
	es, err := s.registry.EventSource(kind)
	if err != nil {
		return err
	}
	conns, err := eventConnections(ctx, tx, kind, event)
	if err != nil {
		return err
	}

	var errs []error
	for _, conn := range conns {
		syncType, ok := es.EventSyncType(conn.Config, event)
		if !ok {
			continue
		}

		err := tx.Savepoint(ctx, func() error {
			var err error
			switch syncType {
			case model.SyncNotifications:
				_, err = s.Notifications.SaveNotificationFromEvent(ctx, tx, event, conn, conn.UserID)
			case model.SyncTasks:
				_, err = s.Tasks.SaveTaskFromEvent(ctx, tx, event, conn, conn.UserID)
			}
			return err
		})
		if err != nil {
			log.Error().Err(err).
				Str("user_id", conn.UserID).
				Str("connection_id", conn.ID).
				Str("event", event.EventType()).
				Msg("failed to handle event")
			errs = append(errs, fmt.Errorf("handling %s event for user %s: %w", event.EventType(), conn.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func eventConnections(
	ctx context.Context,
	tx *store.Tx,
	kind model.IntegrationProviderKind,
	event source.Event,
) ([]model.IntegrationConnection, error) {
	validated := model.ConnectionValidated
	seen := make(map[string]bool)
	var conns []model.IntegrationConnection

	for _, recipient := range event.Recipients() {
		found, err := tx.ListIntegrationConnections(ctx, store.ConnectionFilter{
			Kind:           &kind,
			Status:         &validated,
			ProviderUserID: &recipient,
		})
		if err != nil {
			return nil, err
		}
		for _, conn := range found {
			if !seen[conn.ID] {
				seen[conn.ID] = true
				conns = append(conns, conn)
			}
		}
	}

	itemKind, sourceID, ok := event.Follows()
	if !ok {
		return conns, nil
	}
	items, err := tx.FindThirdPartyItemsForSourceID(ctx, itemKind, sourceID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if seen[item.IntegrationConnectionID] {
			continue
		}
		conn, err := tx.GetIntegrationConnection(ctx, item.IntegrationConnectionID)
		if err != nil {
			return nil, err
		}
		seen[conn.ID] = true
		if conn.IsValidated() {
			conns = append(conns, *conn)
		}
	}
	return conns, nil
}
