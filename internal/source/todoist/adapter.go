package todoist

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

// Adapter syncs Todoist items as tasks and mirrors tasks into Todoist.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	ttl     model.CacheConfig
	cache   cache.Cache
	limiter *rate.Limiter
}

// NewAdapter creates a Todoist adapter. Project lists are cached in c.
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
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderTodoist }

func (a *Adapter) ItemKind() model.ThirdPartyItemKind { return model.KindTodoistItem }

// IsSyncIncremental is true: the sync token only yields changed items,
// completed and deleted ones included.
func (a *Adapter) IsSyncIncremental() bool { return true }

func (a *Adapter) TaskItemSources() []source.ItemSource {
	return []source.ItemSource{a}
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderTodoist, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderTodoist,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

func config(token *source.AccessToken) model.TodoistConfig {
	if cfg := token.Connection.Config.Todoist; cfg != nil {
		return *cfg
	}
	return *model.DefaultConfig(model.ProviderTodoist).Todoist
}

// FetchItems returns the items changed since the sync token stored in the
// connection context and saves the next token.
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

	conn := token.Connection
	next := model.IntegrationConnectionContext{}
	if conn.Context != nil {
		next = *conn.Context
	}
	var syncToken string
	if next.Todoist != nil {
		syncToken = next.Todoist.ItemsSyncToken
	}

	todoistItems, nextToken, err := client.SyncItems(ctx, syncToken)
	if err != nil {
		return nil, err
	}

	items := make([]model.ThirdPartyItem, 0, len(todoistItems))
	for i := range todoistItems {
		items = append(items, source.NewItem(todoistItems[i].ID, &todoistItems[i], token))
	}

	if nextToken != "" && nextToken != syncToken {
		next.Todoist = &model.TodoistContext{ItemsSyncToken: nextToken}
		if err := a.conns.UpdateContext(ctx, tx, conn.ID, &next); err != nil {
			return nil, fmt.Errorf("saving Todoist sync token of connection %s: %w", conn.ID, err)
		}
	}

	log.Debug().
		Str("user_id", userID).
		Bool("full_sync", syncToken == "").
		Int("count", len(items)).
		Msg("fetched Todoist items")
	return items, nil
}

func (a *Adapter) projects(ctx context.Context, client *Client, userID string) ([]Project, error) {
	key := cache.UserKey(userID, "todoist", "projects")
	return cache.Fetch(a.cache, key, a.ttl.ProjectListTTL, func() ([]Project, error) {
		return client.ListProjects(ctx)
	})
}

func (a *Adapter) listProjects(ctx context.Context, tx *store.Tx, userID string) ([]Project, *Client, error) {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	projects, err := a.projects(ctx, client, userID)
	if err != nil {
		return nil, nil, err
	}
	return projects, client, nil
}

func todoistItem(item model.ThirdPartyItem) (*model.TodoistItem, error) {
	t, ok := item.Data.(*model.TodoistItem)
	if !ok {
		return nil, fmt.Errorf("todoist: unexpected item kind %s", item.Kind())
	}
	return t, nil
}

// ThirdPartyItemIntoNotification turns an inbox task into a notification
// that disappears once the task is done.
func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	t, err := todoistItem(item)
	if err != nil {
		return nil, err
	}
	status := model.NotificationUnread
	if t.Checked || t.IsDeleted {
		status = model.NotificationDeleted
	}
	n := source.NewNotification(item, t.Content, status, nil, userID)
	n.CreatedAt = t.AddedAt
	return n, nil
}

// Inbox task notifications follow the task: acting on the notification
// does not touch the item.

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

// ThirdPartyItemIntoTask maps an item to a task that uses the item both
// as source and sink.
func (a *Adapter) ThirdPartyItemIntoTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.CreateOrUpdateTaskRequest, error) {
	t, err := todoistItem(item)
	if err != nil {
		return nil, err
	}
	projects, _, err := a.listProjects(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	project := model.TodoistInboxProject
	for _, p := range projects {
		if p.ID == t.ProjectID {
			project = p.Name
			break
		}
	}

	status := model.TaskActive
	switch {
	case t.IsDeleted:
		status = model.TaskDeleted
	case t.Checked:
		status = model.TaskDone
	}
	sink := item
	return &model.CreateOrUpdateTaskRequest{
		Title:       t.Content,
		Body:        t.Description,
		Status:      status,
		CompletedAt: t.CompletedAt,
		Priority:    t.TaskPriority(),
		DueAt:       t.DueDate(),
		Tags:        append([]string(nil), t.Labels...),
		Project:     project,
		IsRecurring: t.Due != nil && t.Due.IsRecurring,
		Kind:        model.ProviderTodoist,
		SourceItem:  item,
		SinkItem:    &sink,
	}, nil
}

func (a *Adapter) DeleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(client.DeleteItem(ctx, item.SourceID))
}

func (a *Adapter) CompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.CloseItem(ctx, item.SourceID)
}

func (a *Adapter) UncompleteTask(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.UncompleteItem(ctx, item.SourceID)
}

// UpdateTask pushes title, body, priority, due date and project changes.
// Status changes go through the complete and delete operations.
func (a *Adapter) UpdateTask(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	patch model.TaskPatch,
	userID string,
) error {
	args := make(map[string]any)
	if patch.Title != nil {
		args["content"] = *patch.Title
	}
	if patch.Body != nil {
		args["description"] = *patch.Body
	}
	if patch.Priority != nil {
		args["priority"] = model.TodoistPriority(*patch.Priority)
	}
	if patch.DueAt != nil {
		args["due"] = dueArgs(patch.DueAt)
	}

	var projectID string
	if patch.Project != nil {
		project, err := a.GetOrCreateProject(ctx, tx, *patch.Project, userID)
		if err != nil {
			return err
		}
		projectID = project.SourceID
	}
	if len(args) == 0 && projectID == "" {
		return nil
	}

	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return client.UpdateItem(ctx, item.SourceID, args, projectID)
}

// CreateTask adds an item and returns it as stored by Todoist.
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
	args := map[string]any{
		"content":     creation.Title,
		"description": creation.Body,
		"priority":    model.TodoistPriority(creation.Priority),
	}
	if creation.Project.SourceID != "" {
		args["project_id"] = creation.Project.SourceID
	}
	if due := dueArgs(creation.DueAt); due != nil {
		args["due"] = due
	}

	id, err := client.AddItem(ctx, args)
	if err != nil {
		return nil, err
	}
	created, err := client.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item := source.NewItem(created.ID, created, token)
	log.Debug().
		Str("user_id", userID).
		Str("source_id", created.ID).
		Str("project", creation.Project.Name).
		Msg("created Todoist item")
	return &item, nil
}

// GetOrCreateProject matches name exactly, creating the project when no
// active one has it.
func (a *Adapter) GetOrCreateProject(
	ctx context.Context,
	tx *store.Tx,
	name string,
	userID string,
) (model.ProjectSummary, error) {
	projects, client, err := a.listProjects(ctx, tx, userID)
	if err != nil {
		return model.ProjectSummary{}, err
	}
	for _, p := range projects {
		if p.Name == name {
			return p.summary(), nil
		}
	}

	created, err := client.AddProject(ctx, name)
	if err != nil {
		return model.ProjectSummary{}, err
	}
	cache.SetJSON(a.cache, cache.UserKey(userID, "todoist", "projects"), append(projects, created), a.ttl.ProjectListTTL)
	return created.summary(), nil
}

// SearchProjects returns the projects whose name contains pattern,
// ignoring case.
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
	pattern = strings.ToLower(pattern)
	var found []model.ProjectSummary
	for _, p := range projects {
		if strings.Contains(strings.ToLower(p.Name), pattern) {
			found = append(found, p.summary())
		}
	}
	return found, nil
}

func (a *Adapter) IsInInbox(ctx context.Context, tx *store.Tx, item model.ThirdPartyItem, userID string) (bool, error) {
	t, err := todoistItem(item)
	if err != nil {
		return false, err
	}
	projects, _, err := a.listProjects(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range projects {
		if p.InboxProject {
			return p.ID == t.ProjectID, nil
		}
	}
	return false, nil
}
