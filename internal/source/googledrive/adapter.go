package googledrive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

// Adapter syncs comments of recently modified Drive files that call for
// the user's attention.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	limiter *rate.Limiter
}

// NewAdapter creates a Google Drive adapter.
func NewAdapter(conns source.Connections, cfg model.ProviderConfig) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderGoogleDrive }

func (a *Adapter) ItemKind() model.ThirdPartyItemKind { return model.KindGoogleDriveComment }

// IsSyncIncremental is true: only files modified since the last sync are
// scanned.
func (a *Adapter) IsSyncIncremental() bool { return true }

func (a *Adapter) NotificationItemSources() []source.ItemSource {
	return []source.ItemSource{a}
}

// FetchItems scans the comments of files modified after lastSync, or
// after the connection was created on the first sync.
func (a *Adapter) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	lastSync *time.Time,
) ([]model.ThirdPartyItem, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderGoogleDrive, userID)
	if err != nil {
		return nil, err
	}
	if cfg := token.Connection.Config.GoogleDrive; cfg == nil || !cfg.SyncNotificationsEnabled {
		return nil, source.ErrSyncDisabled
	}
	client := NewClient(apiclient.New(apiclient.Options{
		Provider: model.ProviderGoogleDrive,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	}))

	since := token.Connection.CreatedAt
	if lastSync != nil {
		since = *lastSync
	}
	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	user, err := a.identity(ctx, tx, client, token)
	if err != nil {
		return nil, err
	}

	files, err := client.ListFilesModifiedSince(ctx, since, pageSize)
	if err != nil {
		return nil, err
	}

	var items []model.ThirdPartyItem
	for _, file := range files {
		comments, err := client.ListComments(ctx, file.ID, pageSize)
		if err != nil {
			return nil, err
		}
		for _, c := range comments {
			comment := commentToModel(c, file, user)
			existing, err := tx.GetNotificationForSourceID(ctx, comment.SourceID(), userID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if !ShouldCreateItem(existing, comment, user.DisplayName, user.EmailAddress) {
				continue
			}
			item := source.NewItem(comment.SourceID(), comment, token)
			item.CreatedAt = comment.CreatedTime
			item.UpdatedAt = comment.ModifiedTime
			items = append(items, item)
		}
	}

	log.Debug().
		Str("user_id", userID).
		Int("files", len(files)).
		Int("count", len(items)).
		Msg("fetched Google Drive comments")
	return items, nil
}

// identity returns the user's Drive identity, cached in the connection
// context after the first lookup.
func (a *Adapter) identity(
	ctx context.Context,
	tx *store.Tx,
	client *Client,
	token *source.AccessToken,
) (User, error) {
	conn := token.Connection
	if conn.Context != nil && conn.Context.GoogleDrive != nil {
		return User{
			EmailAddress: conn.Context.GoogleDrive.UserEmailAddress,
			DisplayName:  conn.Context.GoogleDrive.UserDisplayName,
		}, nil
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		return User{}, err
	}
	if user.EmailAddress == "" {
		return User{}, fmt.Errorf("google drive user of connection %s has no email address", conn.ID)
	}

	next := model.IntegrationConnectionContext{}
	if conn.Context != nil {
		next = *conn.Context
	}
	next.GoogleDrive = &model.GoogleDriveContext{
		UserEmailAddress: user.EmailAddress,
		UserDisplayName:  user.DisplayName,
	}
	if err := a.conns.UpdateContext(ctx, tx, conn.ID, &next); err != nil {
		return User{}, fmt.Errorf("saving Google Drive context of connection %s: %w", conn.ID, err)
	}
	return user, nil
}

// ShouldCreateItem reports whether a fetched comment is news to the user.
// A comment with a live notification only needs to be newer than it.
// Otherwise the user must be mentioned after the last known update, or
// at all when there is no notification yet.
func ShouldCreateItem(existing *model.Notification, comment *model.GoogleDriveComment, displayName, email string) bool {
	var after *time.Time
	if existing != nil {
		lastUpdate := existing.SourceItem.UpdatedAt
		if existing.Status != model.NotificationUnsubscribed {
			return comment.ModifiedTime.After(lastUpdate)
		}
		after = &lastUpdate
	}
	return comment.IsUserMentioned(displayName, email, after)
}

func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	comment, ok := item.Data.(*model.GoogleDriveComment)
	if !ok {
		return nil, fmt.Errorf("google drive: unexpected item kind %s", item.Kind())
	}

	status := model.NotificationUnread
	if comment.IsLastReplyFromUser() {
		status = model.NotificationDeleted
	}
	n := source.NewNotification(item, comment.Title(), status, nil, userID)
	n.CreatedAt = comment.CreatedTime
	n.UpdatedAt = comment.ModifiedTime
	return n, nil
}

// Drive comments cannot be dismissed remotely: the mutations below only
// affect the local notification.

func (a *Adapter) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (a *Adapter) UnsubscribeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (a *Adapter) SnoozeNotificationFromSource(
	context.Context,
	*store.Tx,
	model.ThirdPartyItem,
	time.Time,
	string,
) error {
	return nil
}

func (a *Adapter) IsSupportingSnoozedNotifications() bool { return false }
