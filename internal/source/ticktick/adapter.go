package ticktick

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/cache"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

// Adapter syncs TickTick tasks and mirrors tasks into TickTick.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	ttl     model.CacheConfig
	cache   cache.Cache
	limiter *rate.Limiter
	now     func() time.Time
}

// NewAdapter creates a TickTick adapter. Project lists are cached in c.
func NewAdapter(
	conns source.Connections,
	cfg model.ProviderConfig,
	c cache.Cache,
	ttl model.CacheConfig,
) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		ttl:     ttl,
		cache:   c,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
		now:     time.Now,
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderTickTick }

func (a *Adapter) ItemKind() model.ThirdPartyItemKind { return model.KindTickTickItem }

// IsSyncIncremental is false: project data only lists open tasks, so a
// task missing from a fetch was completed or deleted.
func (a *Adapter) IsSyncIncremental() bool { return false }

func (a *Adapter) TaskItemSources() []source.ItemSource {
	return []source.ItemSource{a}
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderTickTick, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderTickTick,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

func config(token *source.AccessToken) model.TickTickConfig {
	if cfg := token.Connection.Config.TickTick; cfg != nil {
		return *cfg
	}
	return *model.DefaultConfig(model.ProviderTickTick).TickTick
}

// FetchItems lists the open tasks of the inbox and of every open project.
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
	if !config(token).SyncTasksEnabled {
		return nil, source.ErrSyncDisabled
	}

	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	cache.SetJSON(a.cache, projectsKey(userID), projects, a.ttl.ProjectListTTL)

	projectIDs := []string{inboxProjectID}
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ID)
	}

	var items []model.ThirdPartyItem
	for _, id := range projectIDs {
		tasks, err := client.ProjectTasks(ctx, id)
		if err != nil {
			return nil, err
		}
		for i := range tasks {
			items = append(items, source.NewItem(tasks[i].ID, &tasks[i], token))
		}
	}

	conn := token.Connection
	next := model.IntegrationConnectionContext{}
	if conn.Context != nil {
		next = *conn.Context
	}
	now := a.now().UTC()
	next.TickTick = &model.TickTickContext{LastSyncAt: &now}
	if err := a.conns.UpdateContext(ctx, tx, conn.ID, &next); err != nil {
		return nil, fmt.Errorf("saving TickTick context of connection %s: %w", conn.ID, err)
	}

	log.Debug().
		Str("user_id", userID).
		Int("projects", len(projectIDs)).
		Int("count", len(items)).
		Msg("fetched TickTick tasks")
	return items, nil
}

func projectsKey(userID string) string {
	return cache.UserKey(userID, "ticktick", "projects")
}

func (a *Adapter) listProjects(ctx context.Context, tx *store.Tx, userID string) ([]Project, *Client, error) {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	projects, err := cache.Fetch(a.cache, projectsKey(userID), a.ttl.ProjectListTTL, func() ([]Project, error) {
		return client.ListProjects(ctx)
	})
	if err != nil {
		return nil, nil, err
	}
	return projects, client, nil
}

func tickTickItem(item model.ThirdPartyItem) (*model.TickTickItem, error) {
	t, ok := item.Data.(*model.TickTickItem)
	if !ok {
		return nil, fmt.Errorf("ticktick: unexpected item kind %s", item.Kind())
	}
	return t, nil
}

func isInboxProject(projectID string) bool {
	return projectID == "" || strings.HasPrefix(projectID, inboxProjectID)
}

func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	t, err := tickTickItem(item)
	if err != nil {
		return nil, err
	}
	status := model.NotificationUnread
	if t.IsCompleted() {
		status = model.NotificationDeleted
	}
	n := source.NewNotification(item, t.Title, status, nil, userID)
	if t.CreatedTime != nil {
		n.CreatedAt = t.CreatedTime.Time
	}
	return n, nil
}

// An inbox task notification can only be acted on through its task.

func (a *Adapter) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return source.Unsupported(model.ProviderTickTick, "deleting a notification")
}

func (a *Adapter) UnsubscribeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return source.Unsupported(model.ProviderTickTick, "unsubscribing from a notification")
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

// ThirdPartyItemIntoTask maps a task that uses the item both as source and
// sink.
func (a *Adapter) ThirdPartyItemIntoTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.CreateOrUpdateTaskRequest, error) {
	t, err := tickTickItem(item)
	if err != nil {
		return nil, err
	}

	project := model.TickTickInboxProject
	if !isInboxProject(t.ProjectID) {
		projects, _, err := a.listProjects(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			if p.ID == t.ProjectID {
				project = p.Name
				break
			}
		}
	}

	status := model.TaskActive
	var completedAt *time.Time
	if t.IsCompleted() {
		status = model.TaskDone
		if t.CompletedTime != nil {
			done := t.CompletedTime.Time
			completedAt = &done
		}
	}
	sink := item
	return &model.CreateOrUpdateTaskRequest{
		Title:       t.Title,
		Body:        t.Content,
		Status:      status,
		CompletedAt: completedAt,
		Priority:    t.TaskPriority(),
		DueAt:       t.Due(),
		Tags:        append([]string(nil), t.Tags...),
		Project:     project,
		IsRecurring: t.IsRecurring(),
		Kind:        model.ProviderTickTick,
		SourceItem:  item,
		SinkItem:    &sink,
	}, nil
}

func (a *Adapter) DeleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	t, err := tickTickItem(item)
	if err != nil {
		return err
	}
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(client.DeleteTask(ctx, t.ProjectID, t.ID))
}

func (a *Adapter) CompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	t, err := tickTickItem(item)
	if err != nil {
		return err
	}
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.CompleteTask(ctx, t.ProjectID, t.ID)
}

// UncompleteTask fails: the Open API cannot reopen a task.
func (a *Adapter) UncompleteTask(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return source.Unsupported(model.ProviderTickTick, "uncompleting a task")
}

// UpdateTask sends the last synced task with the patched fields applied.
func (a *Adapter) UpdateTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	patch model.TaskPatch,
	userID string,
) error {
	t, err := tickTickItem(item)
	if err != nil {
		return err
	}
	updated := *t
	changed := false
	if patch.Title != nil {
		updated.Title = *patch.Title
		changed = true
	}
	if patch.Body != nil {
		updated.Content = *patch.Body
		changed = true
	}
	if patch.Priority != nil {
		updated.Priority = model.TickTickPriority(*patch.Priority)
		changed = true
	}
	if patch.DueAt != nil {
		setDue(&updated, patch.DueAt)
		changed = true
	}
	if patch.Project != nil {
		project, err := a.GetOrCreateProject(ctx, tx, *patch.Project, userID)
		if err != nil {
			return err
		}
		updated.ProjectID = project.SourceID
		changed = true
	}
	if !changed {
		return nil
	}

	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.UpdateTask(ctx, updated)
}

func setDue(t *model.TickTickItem, due *model.DueDate) {
	t.DueDate = &model.TickTickTime{Time: due.Time}
	t.AllDay = due.AllDay
}

func (a *Adapter) CreateTask(
	ctx context.Context,
	tx *store.Tx,
	creation model.TaskCreation,
	userID string,
) (*model.ThirdPartyItem, error) {
	client, token, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	task := model.TickTickItem{
		Title:    creation.Title,
		Content:  creation.Body,
		Priority: model.TickTickPriority(creation.Priority),
	}
	if !isInboxProject(creation.Project.SourceID) {
		task.ProjectID = creation.Project.SourceID
	}
	if creation.DueAt != nil {
		setDue(&task, creation.DueAt)
	}

	created, err := client.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	item := source.NewItem(created.ID, created, token)
	log.Debug().
		Str("user_id", userID).
		Str("source_id", created.ID).
		Str("project", creation.Project.Name).
		Msg("created TickTick task")
	return &item, nil
}

// GetOrCreateProject matches name exactly. The inbox is never created.
func (a *Adapter) GetOrCreateProject(
	ctx context.Context,
	tx *store.Tx,
	name string,
	userID string,
) (model.ProjectSummary, error) {
	if name == model.TickTickInboxProject {
		return model.ProjectSummary{SourceID: inboxProjectID, Name: model.TickTickInboxProject}, nil
	}
	projects, client, err := a.listProjects(ctx, tx, userID)
	if err != nil {
		return model.ProjectSummary{}, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p.summary(), nil
		}
	}

	created, err := client.CreateProject(ctx, name)
	if err != nil {
		return model.ProjectSummary{}, err
	}
	cache.SetJSON(a.cache, projectsKey(userID), append(projects, created), a.ttl.ProjectListTTL)
	return created.summary(), nil
}

// SearchProjects returns the projects whose name contains pattern,
// ignoring case. The inbox is always a candidate.
func (a *Adapter) SearchProjects(
	ctx context.Context,
	tx *store.Tx,
	pattern string,
	userID string,
) ([]model.ProjectSummary, error) {
	projects, _, err := a.listProjects(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	all := append([]Project{{ID: inboxProjectID, Name: model.TickTickInboxProject}}, projects...)
	pattern = strings.ToLower(pattern)
	var found []model.ProjectSummary
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), pattern) {
			found = append(found, p.summary())
		}
	}
	return found, nil
}

func (a *Adapter) IsInInbox(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) (bool, error) {
	t, err := tickTickItem(item)
	if err != nil {
		return false, err
	}
	return isInboxProject(t.ProjectID), nil
}
