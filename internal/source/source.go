package source

import (
	"context"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
)

// AccessToken is a usable token together with the connection it belongs to.
type AccessToken struct {
	Token      string
	Connection model.IntegrationConnection
}

// Connections is the part of the connection service adapters rely on.
type Connections interface {
	// FindAccessToken returns nil when the user has no usable connection
	// to the provider.
	FindAccessToken(
		ctx context.Context,
		tx *store.Tx,
		kind model.IntegrationProviderKind,
		userID string,
	) (*AccessToken, error)

	// UpdateContext replaces the provider specific state of a connection.
	UpdateContext(
		ctx context.Context,
		tx *store.Tx,
		connectionID string,
		c *model.IntegrationConnectionContext,
	) error
}

// RequireAccessToken is FindAccessToken failing with an *AuthError when
// no token exists.
func RequireAccessToken(
	ctx context.Context,
	conns Connections,
	tx *store.Tx,
	kind model.IntegrationProviderKind,
	userID string,
) (*AccessToken, error) {
	token, err := conns.FindAccessToken(ctx, tx, kind, userID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, &AuthError{Provider: kind, Message: "no validated access token for user " + userID}
	}
	return token, nil
}

// Provider is implemented by every adapter.
type Provider interface {
	Kind() model.IntegrationProviderKind
}

// ItemSource fetches the items of one kind from a provider.
type ItemSource interface {
	ItemKind() model.ThirdPartyItemKind

	// FetchItems pages through the provider and returns every item found.
	// Incremental sources only return what changed after
	// lastSyncCompletedAt.
	FetchItems(
		ctx context.Context,
		tx *store.Tx,
		userID string,
		lastSyncCompletedAt *time.Time,
	) ([]model.ThirdPartyItem, error)

	// IsSyncIncremental reports whether a fetch only returns changes. Items
	// missing from a full fetch are considered stale.
	IsSyncIncremental() bool
}

// NotificationFetcher is implemented by providers whose items are synced
// as notifications.
type NotificationFetcher interface {
	Provider
	NotificationItemSources() []ItemSource
}

// TaskFetcher is implemented by providers whose items are synced as tasks.
type TaskFetcher interface {
	Provider
	TaskItemSources() []ItemSource
}

// NotificationSource derives notifications from items and applies
// notification actions upstream.
type NotificationSource interface {
	Provider

	// ThirdPartyItemIntoNotification returns nil when the item should not
	// produce a notification.
	ThirdPartyItemIntoNotification(
		ctx context.Context,
		tx *store.Tx,
		item model.ThirdPartyItem,
		userID string,
	) (*model.Notification, error)

	DeleteNotificationFromSource(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error
	UnsubscribeNotificationFromSource(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error
	SnoozeNotificationFromSource(
		ctx context.Context,
		tx *store.Tx,
		item model.ThirdPartyItem,
		until time.Time,
		userID string,
	) error

	// IsSupportingSnoozedNotifications reports whether the provider keeps
	// its own snooze state, which then wins over the local one on resync.
	IsSupportingSnoozedNotifications() bool
}

// TaskSource derives tasks from items and applies task actions upstream.
type TaskSource interface {
	Provider

	ThirdPartyItemIntoTask(
		ctx context.Context,
		tx *store.Tx,
		item model.ThirdPartyItem,
		userID string,
	) (*model.CreateOrUpdateTaskRequest, error)

	DeleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error
	CompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error
	UncompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error
	UpdateTask(
		ctx context.Context,
		tx *store.Tx,
		item model.ThirdPartyItem,
		patch model.TaskPatch,
		userID string,
	) error
}

// TaskSink is a task tracker tasks can be mirrored into.
type TaskSink interface {
	TaskSource

	CreateTask(
		ctx context.Context,
		tx *store.Tx,
		creation model.TaskCreation,
		userID string,
	) (*model.ThirdPartyItem, error)
	GetOrCreateProject(ctx context.Context, tx *store.Tx, name, userID string) (model.ProjectSummary, error)
	SearchProjects(ctx context.Context, tx *store.Tx, pattern, userID string) ([]model.ProjectSummary, error)

	// IsInInbox reports whether a sink item sits in the tracker's default
	// project.
	IsInInbox(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) (bool, error)
}

// Event is a pre-parsed webhook event.
type Event interface {
	EventType() string

	// Recipients are the provider user ids the event is addressed to.
	Recipients() []string

	// Sender is the provider user id who caused the event, empty when
	// unknown.
	Sender() string

	// Follows names the already synced items the event updates for their
	// owners, e.g. a reply posted in a thread.
	Follows() (kind model.ThirdPartyItemKind, sourceID string, ok bool)
}

// EventSource turns webhook events into items.
type EventSource interface {
	Provider

	// EventSyncType tells whether the event feeds notifications or tasks
	// under config. It returns false when config does not sync it.
	EventSyncType(config model.IntegrationConnectionConfig, event Event) (model.SyncType, bool)

	// FetchItemFromEvent returns nil when the event carries nothing to
	// sync.
	FetchItemFromEvent(ctx context.Context, tx *store.Tx, event Event, userID string) (*model.ThirdPartyItem, error)
}

// ItemDeriver promotes an item of another provider into one of its own,
// e.g. a mail invitation into a calendar event.
type ItemDeriver interface {
	Provider
	DerivesFrom() model.ThirdPartyItemKind

	// DeriveItem returns nil when the item carries nothing to derive. The
	// result references item as its SourceItem.
	DeriveItem(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) (*model.ThirdPartyItem, error)
}

// NewItem wraps a payload fetched with token into an item of the token's
// connection.
func NewItem(sourceID string, data model.ThirdPartyItemData, token *AccessToken) model.ThirdPartyItem {
	return model.ThirdPartyItem{
		SourceID:                sourceID,
		Data:                    data,
		UserID:                  token.Connection.UserID,
		IntegrationConnectionID: token.Connection.ID,
	}
}

// NewNotification builds the notification derived from item.
func NewNotification(
	item model.ThirdPartyItem,
	title string,
	status model.NotificationStatus,
	lastReadAt *time.Time,
	userID string,
) *model.Notification {
	return &model.Notification{
		Title:      title,
		Status:     status,
		LastReadAt: lastReadAt,
		UserID:     userID,
		Kind:       item.Provider(),
		SourceItem: item,
	}
}
