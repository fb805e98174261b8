package googlemail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

// Adapter syncs the Gmail threads carrying the user's synced label.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	limiter *rate.Limiter
}

// NewAdapter creates a Google Mail adapter.
func NewAdapter(conns source.Connections, cfg model.ProviderConfig) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderGoogleMail }

func (a *Adapter) ItemKind() model.ThirdPartyItemKind { return model.KindGoogleMailThread }

// IsSyncIncremental is false: the label query bounds the listing.
func (a *Adapter) IsSyncIncremental() bool { return false }

func (a *Adapter) NotificationItemSources() []source.ItemSource {
	return []source.ItemSource{a}
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderGoogleMail, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderGoogleMail,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

func syncedLabelID(token *source.AccessToken) string {
	if cfg := token.Connection.Config.GoogleMail; cfg != nil && cfg.SyncedLabel.ID != "" {
		return cfg.SyncedLabel.ID
	}
	return model.GoogleMailStarredLabel
}

// FetchItems lists every thread of the synced label. Threads the user
// unsubscribed from are archived again when their new messages do not
// address the user.
func (a *Adapter) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	_ *time.Time,
) ([]model.ThirdPartyItem, error) {
	client, token, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if cfg := token.Connection.Config.GoogleMail; cfg == nil || !cfg.SyncNotificationsEnabled {
		return nil, source.ErrSyncDisabled
	}

	email, err := a.refreshContext(ctx, tx, client, token)
	if err != nil {
		return nil, err
	}

	label := syncedLabelID(token)
	pageSize := a.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var items []model.ThirdPartyItem
	pageToken := ""
	for {
		summaries, next, err := client.ListThreads(ctx, []string{label}, pageToken, pageSize)
		if err != nil {
			return nil, err
		}
		for _, summary := range summaries {
			raw, err := client.GetThread(ctx, summary.ID)
			if err != nil {
				return nil, err
			}
			thread := threadToModel(raw, email)

			previous, err := previousStatus(ctx, tx, thread.ID, userID)
			if err != nil {
				return nil, err
			}
			if previous == model.NotificationUnsubscribed && !IsReactivated(thread) {
				if err := archive(ctx, client, thread.ID, label); err != nil {
					return nil, err
				}
				thread.RemoveLabels(model.GoogleMailInboxLabel, label)
				log.Debug().
					Str("user_id", userID).
					Str("thread_id", thread.ID).
					Msg("archived new messages of unsubscribed Google Mail thread")
			}
			items = append(items, source.NewItem(thread.ID, thread, token))
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	log.Debug().
		Str("user_id", userID).
		Int("count", len(items)).
		Msg("fetched Google Mail threads")
	return items, nil
}

// refreshContext stores the mailbox address and labels on the
// connection. The address is only looked up once.
func (a *Adapter) refreshContext(
	ctx context.Context,
	tx *store.Tx,
	client *Client,
	token *source.AccessToken,
) (string, error) {
	conn := token.Connection
	var current model.GoogleMailContext
	if conn.Context != nil && conn.Context.GoogleMail != nil {
		current = *conn.Context.GoogleMail
	}

	labels, err := client.ListLabels(ctx)
	if err != nil {
		return "", err
	}
	updated := model.GoogleMailContext{
		UserEmailAddress: current.UserEmailAddress,
		Labels:           labelsToModel(labels),
	}
	if updated.UserEmailAddress == "" {
		profile, err := client.GetProfile(ctx)
		if err != nil {
			return "", err
		}
		updated.UserEmailAddress = profile.EmailAddress
	}
	if cmp.Equal(current, updated) {
		return updated.UserEmailAddress, nil
	}

	next := model.IntegrationConnectionContext{}
	if conn.Context != nil {
		next = *conn.Context
	}
	next.GoogleMail = &updated
	if err := a.conns.UpdateContext(ctx, tx, conn.ID, &next); err != nil {
		return "", fmt.Errorf("saving Google Mail context of connection %s: %w", conn.ID, err)
	}
	return updated.UserEmailAddress, nil
}

func previousStatus(ctx context.Context, tx *store.Tx, threadID, userID string) (model.NotificationStatus, error) {
	n, err := tx.GetNotificationForSourceID(ctx, threadID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return n.Status, nil
}

// IsReactivated reports whether an unread message, from the first
// unread one on, is addressed to the user in its To header.
func IsReactivated(thread *model.GoogleMailThread) bool {
	first := thread.FirstUnreadIndex()
	if first < 0 {
		return false
	}
	for _, m := range thread.Messages[first:] {
		if to, ok := m.Header("To"); ok && containsAddress(to, thread.UserEmailAddress) {
			return true
		}
	}
	return false
}

// containsAddress matches addresses case insensitively. Headers that do
// not parse fall back to a substring match.
func containsAddress(header, email string) bool {
	if email == "" {
		return false
	}
	addresses, err := mail.ParseAddressList(header)
	if err != nil {
		return strings.Contains(strings.ToLower(header), strings.ToLower(email))
	}
	for _, addr := range addresses {
		if strings.EqualFold(addr.Address, email) {
			return true
		}
	}
	return false
}

// isAuthoredBy reports whether the From header of the message is the
// user.
func isAuthoredBy(m model.GoogleMailMessage, email string) bool {
	from, ok := m.Header("From")
	if !ok || email == "" {
		return false
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.Contains(strings.ToLower(from), strings.ToLower(email))
	}
	return strings.EqualFold(addr.Address, email)
}

// ThirdPartyItemIntoNotification derives the status from the labels and
// the status the notification had before this sync.
func (a *Adapter) ThirdPartyItemIntoNotification(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	thread, ok := item.Data.(*model.GoogleMailThread)
	if !ok {
		return nil, fmt.Errorf("google mail: unexpected item kind %s", item.Kind())
	}
	last, ok := thread.LastMessage()
	if !ok {
		return nil, nil
	}

	previous, err := previousStatus(ctx, tx, thread.ID, userID)
	if err != nil {
		return nil, err
	}

	status := ThreadStatus(thread, previous)
	notification := source.NewNotification(item, thread.Subject(), status, lastReadAt(thread), userID)
	notification.UpdatedAt = last.InternalDate.Time
	return notification, nil
}

// ThreadStatus applies the thread status rules given the status of the
// existing notification, "" when there is none.
func ThreadStatus(thread *model.GoogleMailThread, previous model.NotificationStatus) model.NotificationStatus {
	if previous == model.NotificationUnsubscribed && !IsReactivated(thread) {
		return model.NotificationUnsubscribed
	}
	reactivated := previous == model.NotificationUnsubscribed
	if !reactivated && !thread.IsTaggedWith(model.GoogleMailInboxLabel) {
		return model.NotificationUnsubscribed
	}
	if !thread.IsTaggedWith(model.GoogleMailUnreadLabel) {
		return model.NotificationRead
	}
	if last, ok := thread.LastMessage(); ok && isAuthoredBy(last, thread.UserEmailAddress) {
		return model.NotificationDeleted
	}
	return model.NotificationUnread
}

// lastReadAt is the date of the message before the first unread one.
func lastReadAt(thread *model.GoogleMailThread) *time.Time {
	first := thread.FirstUnreadIndex()
	switch {
	case first == 0:
		return nil
	case first > 0:
		t := thread.Messages[first-1].InternalDate.Time
		return &t
	}
	last, ok := thread.LastMessage()
	if !ok {
		return nil
	}
	t := last.InternalDate.Time
	return &t
}

func archive(ctx context.Context, client *Client, threadID, syncedLabel string) error {
	remove := []string{model.GoogleMailInboxLabel}
	if !slices.Contains(remove, syncedLabel) {
		remove = append(remove, syncedLabel)
	}
	return source.IgnoreNotFound(client.ModifyThread(ctx, threadID, nil, remove))
}

// DeleteNotificationFromSource archives the thread.
func (a *Adapter) DeleteNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	client, token, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return archive(ctx, client, item.SourceID, syncedLabelID(token))
}

// UnsubscribeNotificationFromSource archives the thread. Later messages
// are archived on sync unless they address the user.
func (a *Adapter) UnsubscribeNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	return a.DeleteNotificationFromSource(ctx, tx, item, userID)
}

// SnoozeNotificationFromSource is a no-op: the public API cannot snooze
// threads.
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
