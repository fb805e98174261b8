package linear

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

// Adapter syncs Linear inbox notifications and the issues assigned to
// the user.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	limiter *rate.Limiter
	now     func() time.Time
}

// NewAdapter creates a Linear adapter.
func NewAdapter(conns source.Connections, cfg model.ProviderConfig) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
		now:     time.Now,
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderLinear }

func (a *Adapter) NotificationItemSources() []source.ItemSource {
	return []source.ItemSource{&notificationSource{a}}
}

func (a *Adapter) TaskItemSources() []source.ItemSource {
	return []source.ItemSource{&issueSource{a}}
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderLinear, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderLinear,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

func (a *Adapter) pageSize() int {
	if a.cfg.PageSize > 0 {
		return a.cfg.PageSize
	}
	return 50
}

func config(token *source.AccessToken) model.LinearConfig {
	if cfg := token.Connection.Config.Linear; cfg != nil {
		return *cfg
	}
	return *model.DefaultConfig(model.ProviderLinear).Linear
}

type notificationSource struct{ a *Adapter }

func (s *notificationSource) ItemKind() model.ThirdPartyItemKind { return model.KindLinearNotification }

func (s *notificationSource) IsSyncIncremental() bool { return false }

// FetchItems returns the inbox notifications, keeping only the latest one
// per issue.
func (s *notificationSource) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	_ *time.Time,
) ([]model.ThirdPartyItem, error) {
	client, token, err := s.a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !config(token).SyncNotificationsEnabled {
		return nil, source.ErrSyncDisabled
	}

	nodes, err := client.ListNotifications(ctx, s.a.pageSize())
	if err != nil {
		return nil, err
	}

	var notifications []*model.LinearNotification
	latest := make(map[string]int)
	for _, node := range nodes {
		n := notificationToModel(node)
		if n == nil {
			continue
		}
		if n.Issue == nil {
			notifications = append(notifications, n)
			continue
		}
		i, seen := latest[n.Issue.ID]
		if !seen {
			latest[n.Issue.ID] = len(notifications)
			notifications = append(notifications, n)
			continue
		}
		if n.UpdatedAt.After(notifications[i].UpdatedAt) {
			notifications[i] = n
		}
	}

	items := make([]model.ThirdPartyItem, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, source.NewItem(n.ID, n, token))
	}
	log.Debug().
		Str("user_id", userID).
		Int("fetched", len(nodes)).
		Int("count", len(items)).
		Msg("fetched Linear notifications")
	return items, nil
}

type issueSource struct{ a *Adapter }

func (s *issueSource) ItemKind() model.ThirdPartyItemKind { return model.KindLinearIssue }

func (s *issueSource) IsSyncIncremental() bool { return false }

// FetchItems returns the open issues assigned to the user.
func (s *issueSource) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	_ *time.Time,
) ([]model.ThirdPartyItem, error) {
	client, token, err := s.a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !config(token).SyncTasksEnabled {
		return nil, source.ErrSyncDisabled
	}

	nodes, err := client.ListAssignedIssues(ctx, s.a.pageSize())
	if err != nil {
		return nil, err
	}
	items := make([]model.ThirdPartyItem, 0, len(nodes))
	for _, node := range nodes {
		issue := issueToModel(node)
		items = append(items, source.NewItem(issue.ID, issue, token))
	}
	log.Debug().
		Str("user_id", userID).
		Int("count", len(items)).
		Msg("fetched Linear assigned issues")
	return items, nil
}

func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	n, ok := item.Data.(*model.LinearNotification)
	if !ok {
		return nil, fmt.Errorf("linear: unexpected item kind %s", item.Kind())
	}

	status := model.NotificationUnread
	if n.ReadAt != nil {
		status = model.NotificationRead
	}
	notification := source.NewNotification(item, n.Title(), status, n.ReadAt, userID)
	notification.SnoozedUntil = n.SnoozedUntilAt
	notification.UpdatedAt = n.UpdatedAt
	return notification, nil
}

// DeleteNotificationFromSource archives the notification.
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
	return source.IgnoreNotFound(client.ArchiveNotification(ctx, item.SourceID))
}

// UnsubscribeNotificationFromSource stops following the issue, then
// archives the notification.
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
	if err := source.IgnoreNotFound(client.UnsubscribeFromNotificationIssue(ctx, item.SourceID)); err != nil {
		return err
	}
	return source.IgnoreNotFound(client.ArchiveNotification(ctx, item.SourceID))
}

func (a *Adapter) SnoozeNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	until time.Time,
	userID string,
) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.SnoozeNotification(ctx, item.SourceID, until)
}

// IsSupportingSnoozedNotifications is true: Linear keeps its own snooze
// date, which is synced back.
func (a *Adapter) IsSupportingSnoozedNotifications() bool { return true }

// ThirdPartyItemIntoTask mirrors an assigned issue. The issue's due date
// wins over the configured default.
func (a *Adapter) ThirdPartyItemIntoTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.CreateOrUpdateTaskRequest, error) {
	issue, ok := item.Data.(*model.LinearIssue)
	if !ok {
		return nil, fmt.Errorf("linear: unexpected item kind %s", item.Kind())
	}

	var defaults model.TaskDefaults
	token, err := a.conns.FindAccessToken(ctx, tx, model.ProviderLinear, userID)
	if err != nil {
		return nil, err
	}
	if token != nil {
		defaults = config(token).TaskDefaults
	}

	tags := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		tags = append(tags, l.Name)
	}
	req := &model.CreateOrUpdateTaskRequest{
		Title:       fmt.Sprintf("[%s](%s)", issue.Title, issue.HTMLURL()),
		Body:        issue.Description,
		Status:      issue.TaskStatus(),
		CompletedAt: issue.CompletedAt,
		Priority:    issue.TaskPriority(),
		Tags:        tags,
		Project:     defaults.Project,
		Kind:        model.ProviderLinear,
		SourceItem:  item,
	}
	switch {
	case issue.DueDate != "":
		due, err := model.ParseDueDate(issue.DueDate)
		if err != nil {
			return nil, fmt.Errorf("linear issue %s: %w", issue.Identifier, err)
		}
		req.DueAt = due
	case defaults.DueInDays != nil:
		req.DueAt = model.DueInDays(a.now(), *defaults.DueInDays)
	}
	return req, nil
}

func (a *Adapter) moveIssue(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	status model.TaskStatus,
	userID string,
) error {
	issue, ok := item.Data.(*model.LinearIssue)
	if !ok {
		return fmt.Errorf("linear: unexpected item kind %s", item.Kind())
	}
	stateID, ok := issue.StateIDFor(status)
	if !ok {
		return fmt.Errorf("linear issue %s: no workflow state for task status %s", issue.Identifier, status)
	}
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.UpdateIssueState(ctx, item.SourceID, stateID)
}

// DeleteTask cancels the issue.
func (a *Adapter) DeleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	return a.moveIssue(ctx, tx, item, model.TaskDeleted, userID)
}

// CompleteTask moves the issue to the team's completed state.
func (a *Adapter) CompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	return a.moveIssue(ctx, tx, item, model.TaskDone, userID)
}

// UncompleteTask moves the issue back to the team's unstarted state.
func (a *Adapter) UncompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	return a.moveIssue(ctx, tx, item, model.TaskActive, userID)
}

func (a *Adapter) UpdateTask(context.Context, *store.Tx, model.ThirdPartyItem, model.TaskPatch, string) error {
	return nil
}
