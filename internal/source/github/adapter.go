package github

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

// Adapter syncs the GitHub notification inbox.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	limiter *rate.Limiter
}

// NewAdapter creates a GitHub adapter.
func NewAdapter(conns source.Connections, cfg model.ProviderConfig) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderGithub }

func (a *Adapter) ItemKind() model.ThirdPartyItemKind { return model.KindGithubNotification }

func (a *Adapter) IsSyncIncremental() bool { return false }

func (a *Adapter) NotificationItemSources() []source.ItemSource {
	return []source.ItemSource{a}
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderGithub, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderGithub,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

// FetchItems pages through every notification of the user. Pull request
// notifications carry the details of their pull request.
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
	if cfg := token.Connection.Config.Github; cfg == nil || !cfg.SyncNotificationsEnabled {
		return nil, source.ErrSyncDisabled
	}

	perPage := a.cfg.PageSize
	if perPage <= 0 {
		perPage = 50
	}

	var items []model.ThirdPartyItem
	for page := 1; ; page++ {
		notifications, err := client.FetchNotifications(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		for _, n := range notifications {
			data := notificationToModel(n)
			if err := a.attachPullRequest(ctx, tx, client, token, data); err != nil {
				return nil, err
			}
			items = append(items, source.NewItem(n.ID, data, token))
		}
		if len(notifications) < perPage {
			break
		}
	}

	log.Debug().
		Str("user_id", userID).
		Int("count", len(items)).
		Msg("fetched GitHub notifications")
	return items, nil
}

// attachPullRequest fills the pull request details of n. A thread that
// did not change since the last sync keeps its stored details. Details
// that cannot be fetched are left out, except on authentication errors.
func (a *Adapter) attachPullRequest(
	ctx context.Context,
	tx *store.Tx,
	client *Client,
	token *source.AccessToken,
	n *model.GithubNotification,
) error {
	if n.Subject.Type != "PullRequest" {
		return nil
	}
	ref, ok := ParsePullRequestURL(n.Subject.URL)
	if !ok {
		return nil
	}

	var previous *model.GithubPullRequest
	stored, err := tx.GetThirdPartyItemBySourceID(ctx, token.Connection.UserID, token.Connection.ID, n.ID)
	switch {
	case err == nil:
		if prev, ok := stored.Data.(*model.GithubNotification); ok && prev.PullRequest != nil {
			previous = prev.PullRequest
			if prev.UpdatedAt.Equal(n.UpdatedAt) {
				n.PullRequest = previous
				return nil
			}
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	pr, err := client.QueryPullRequest(ctx, ref)
	switch {
	case source.IsAuthError(err):
		return err
	case err != nil:
		log.Warn().Err(err).
			Str("user_id", token.Connection.UserID).
			Str("source_id", n.ID).
			Msg("GitHub pull request details unavailable")
		n.PullRequest = previous
		return nil
	}
	n.PullRequest = pullRequestToModel(*pr)
	return nil
}

// ThirdPartyItemIntoNotification maps unread threads to Unread and the
// others to Read.
func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	n, ok := item.Data.(*model.GithubNotification)
	if !ok {
		return nil, fmt.Errorf("github: unexpected item kind %s", item.Kind())
	}

	status := model.NotificationRead
	if n.Unread {
		status = model.NotificationUnread
	}
	notification := source.NewNotification(item, n.Subject.Title, status, n.LastReadAt, userID)
	notification.UpdatedAt = n.UpdatedAt
	return notification, nil
}

func (a *Adapter) DeleteNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(client.MarkThreadAsDone(ctx, item.SourceID))
}

func (a *Adapter) UnsubscribeNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := source.IgnoreNotFound(client.IgnoreThread(ctx, item.SourceID)); err != nil {
		return err
	}
	return source.IgnoreNotFound(client.MarkThreadAsDone(ctx, item.SourceID))
}

// SnoozeNotificationFromSource is a no-op: GitHub has no snooze, the
// snooze only lives locally.
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
