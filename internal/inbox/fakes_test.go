package inbox_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/integration"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
	"github.com/nhle/universal-inbox/tests/testutil"
)

var now = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

// fakeItems is an item source serving a fixed listing.
type fakeItems struct {
	kind        model.ThirdPartyItemKind
	incremental bool
	items       []model.ThirdPartyItem
	err         error
}

func (f *fakeItems) ItemKind() model.ThirdPartyItemKind { return f.kind }
func (f *fakeItems) IsSyncIncremental() bool            { return f.incremental }

func (f *fakeItems) FetchItems(context.Context, *store.Tx, string, *time.Time) ([]model.ThirdPartyItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.ThirdPartyItem(nil), f.items...), nil
}

// recorder keeps the upstream calls made on a fake provider.
type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) record(action string, item model.ThirdPartyItem) error {
	r.calls = append(r.calls, action+":"+item.SourceID)
	return r.fail[action]
}

func (r *recorder) failOn(action string, err error) {
	if r.fail == nil {
		r.fail = make(map[string]error)
	}
	r.fail[action] = err
}

// fakeGithub syncs notifications.
type fakeGithub struct {
	recorder
	src *fakeItems
}

func newFakeGithub() *fakeGithub {
	return &fakeGithub{src: &fakeItems{kind: model.KindGithubNotification}}
}

func (f *fakeGithub) Kind() model.IntegrationProviderKind          { return model.ProviderGithub }
func (f *fakeGithub) NotificationItemSources() []source.ItemSource { return []source.ItemSource{f.src} }
func (f *fakeGithub) IsSupportingSnoozedNotifications() bool       { return false }

func (f *fakeGithub) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	d := item.Data.(*model.GithubNotification)
	status := model.NotificationRead
	if d.Unread {
		status = model.NotificationUnread
	}
	return source.NewNotification(item, d.Subject.Title, status, d.LastReadAt, userID), nil
}

func (f *fakeGithub) DeleteNotificationFromSource(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("delete", item)
}

func (f *fakeGithub) UnsubscribeNotificationFromSource(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("unsubscribe", item)
}

func (f *fakeGithub) SnoozeNotificationFromSource(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ time.Time, _ string) error {
	return f.record("snooze", item)
}

// fakeLinear syncs assigned issues as tasks.
type fakeLinear struct {
	recorder
	src *fakeItems
}

func newFakeLinear() *fakeLinear {
	return &fakeLinear{src: &fakeItems{kind: model.KindLinearIssue}}
}

func (f *fakeLinear) Kind() model.IntegrationProviderKind  { return model.ProviderLinear }
func (f *fakeLinear) TaskItemSources() []source.ItemSource { return []source.ItemSource{f.src} }

func (f *fakeLinear) ThirdPartyItemIntoTask(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	_ string,
) (*model.CreateOrUpdateTaskRequest, error) {
	issue := item.Data.(*model.LinearIssue)
	status := model.TaskActive
	if issue.State.Type == model.LinearWorkflowStateCompleted {
		status = model.TaskDone
	}
	return &model.CreateOrUpdateTaskRequest{
		Title:      issue.Title,
		Status:     status,
		Priority:   model.PriorityP2,
		Project:    "Work",
		Kind:       model.ProviderLinear,
		SourceItem: item,
	}, nil
}

func (f *fakeLinear) DeleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("delete", item)
}

func (f *fakeLinear) CompleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("complete", item)
}

func (f *fakeLinear) UncompleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("uncomplete", item)
}

func (f *fakeLinear) UpdateTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ model.TaskPatch, _ string) error {
	return f.record("update", item)
}

// fakeTodoist is the sink tracker.
type fakeTodoist struct {
	recorder
	conns    source.Connections
	projects []string
	created  []model.TaskCreation
}

func (f *fakeTodoist) Kind() model.IntegrationProviderKind    { return model.ProviderTodoist }
func (f *fakeTodoist) IsSupportingSnoozedNotifications() bool { return false }

func (f *fakeTodoist) ThirdPartyItemIntoTask(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	_ string,
) (*model.CreateOrUpdateTaskRequest, error) {
	d := item.Data.(*model.TodoistItem)
	status := model.TaskActive
	switch {
	case d.IsDeleted:
		status = model.TaskDeleted
	case d.Checked:
		status = model.TaskDone
	}
	project := "Work"
	if d.ProjectID == "p-inbox" {
		project = model.TodoistInboxProject
	}
	sink := item
	return &model.CreateOrUpdateTaskRequest{
		Title:      d.Content,
		Status:     status,
		Priority:   model.PriorityP4,
		Project:    project,
		Kind:       model.ProviderTodoist,
		SourceItem: item,
		SinkItem:   &sink,
	}, nil
}

func (f *fakeTodoist) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	d := item.Data.(*model.TodoistItem)
	status := model.NotificationUnread
	if d.Checked || d.IsDeleted {
		status = model.NotificationDeleted
	}
	return source.NewNotification(item, d.Content, status, nil, userID), nil
}

func (f *fakeTodoist) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeTodoist) UnsubscribeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeTodoist) SnoozeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, time.Time, string) error {
	return nil
}

func (f *fakeTodoist) DeleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("delete", item)
}

func (f *fakeTodoist) CompleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("complete", item)
}

func (f *fakeTodoist) UncompleteTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) error {
	return f.record("uncomplete", item)
}

func (f *fakeTodoist) UpdateTask(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ model.TaskPatch, _ string) error {
	return f.record("update", item)
}

func (f *fakeTodoist) CreateTask(
	ctx context.Context,
	tx *store.Tx,
	creation model.TaskCreation,
	userID string,
) (*model.ThirdPartyItem, error) {
	token, err := source.RequireAccessToken(ctx, f.conns, tx, model.ProviderTodoist, userID)
	if err != nil {
		return nil, err
	}
	f.created = append(f.created, creation)
	id := fmt.Sprintf("new-%d", len(f.created))
	item := source.NewItem(id, &model.TodoistItem{
		ID:        id,
		ProjectID: creation.Project.SourceID,
		Content:   creation.Title,
		Priority:  4,
		AddedAt:   now,
	}, token)
	return &item, nil
}

func (f *fakeTodoist) GetOrCreateProject(_ context.Context, _ *store.Tx, name, _ string) (model.ProjectSummary, error) {
	f.projects = append(f.projects, name)
	return model.ProjectSummary{SourceID: "p-" + strings.ToLower(name), Name: name}, nil
}

func (f *fakeTodoist) SearchProjects(
	ctx context.Context,
	tx *store.Tx,
	pattern, userID string,
) ([]model.ProjectSummary, error) {
	if _, err := source.RequireAccessToken(ctx, f.conns, tx, model.ProviderTodoist, userID); err != nil {
		return nil, err
	}
	var found []model.ProjectSummary
	for _, name := range []string{"Inbox", "Work", "Workshop"} {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			found = append(found, model.ProjectSummary{SourceID: "p-" + strings.ToLower(name), Name: name})
		}
	}
	return found, nil
}

func (f *fakeTodoist) IsInInbox(_ context.Context, _ *store.Tx, item model.ThirdPartyItem, _ string) (bool, error) {
	return item.Data.(*model.TodoistItem).ProjectID == "p-inbox", nil
}

// fakeEvent is a pre-parsed webhook event about a starred file.
type fakeEvent struct {
	recipients []string
	sender     string
	fileID     string
	title      string
}

func (e fakeEvent) EventType() string    { return "star_added" }
func (e fakeEvent) Recipients() []string { return e.recipients }
func (e fakeEvent) Sender() string       { return e.sender }

func (e fakeEvent) Follows() (model.ThirdPartyItemKind, string, bool) {
	return "", "", false
}

// fakeSlack turns star events into notifications.
type fakeSlack struct {
	conns source.Connections
}

func (f *fakeSlack) Kind() model.IntegrationProviderKind    { return model.ProviderSlack }
func (f *fakeSlack) IsSupportingSnoozedNotifications() bool { return false }

func (f *fakeSlack) EventSyncType(config model.IntegrationConnectionConfig, _ source.Event) (model.SyncType, bool) {
	if config.Slack == nil || !config.Slack.StarConfig.Enabled {
		return "", false
	}
	return model.SyncNotifications, true
}

func (f *fakeSlack) FetchItemFromEvent(
	ctx context.Context,
	tx *store.Tx,
	event source.Event,
	userID string,
) (*model.ThirdPartyItem, error) {
	e := event.(fakeEvent)
	token, err := source.RequireAccessToken(ctx, f.conns, tx, model.ProviderSlack, userID)
	if err != nil {
		return nil, err
	}
	star := &model.SlackStar{
		State:     model.SlackStarAdded,
		CreatedAt: now,
		Item:      model.SlackItem{Type: "file", File: &model.SlackFileDetails{ID: e.fileID, Title: e.title}},
	}
	item := source.NewItem(star.SourceID(), star, token)
	return &item, nil
}

func (f *fakeSlack) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	star := item.Data.(*model.SlackStar)
	status := model.NotificationUnread
	if star.State == model.SlackStarRemoved {
		status = model.NotificationDeleted
	}
	return source.NewNotification(item, star.Item.Title(), status, nil, userID), nil
}

func (f *fakeSlack) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeSlack) UnsubscribeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeSlack) SnoozeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, time.Time, string) error {
	return nil
}

type env struct {
	ctx   context.Context
	tx    *store.Tx
	conns *integration.Service
	svc   *inbox.Services

	github  *fakeGithub
	linear  *fakeLinear
	todoist *fakeTodoist
	slack   *fakeSlack

	githubConn  *model.IntegrationConnection
	linearConn  *model.IntegrationConnection
	todoistConn *model.IntegrationConnection
}

// newEnv connects user-1 to GitHub, Linear and, when withSink is set, to
// Todoist as the sink tracker.
func newEnv(t *testing.T, withSink bool) *env {
	t.Helper()

	s := testutil.NewTestStore(t)
	tx := testutil.NewTestTx(t, s)
	conns := testutil.NewConnections(t)

	e := &env{
		ctx:     context.Background(),
		tx:      tx,
		conns:   conns,
		github:  newFakeGithub(),
		linear:  newFakeLinear(),
		todoist: &fakeTodoist{conns: conns},
		slack:   &fakeSlack{conns: conns},
	}
	e.githubConn = testutil.Connect(t, tx, conns, "user-1", model.ProviderGithub, "gh-token", nil)
	e.linearConn = testutil.Connect(t, tx, conns, "user-1", model.ProviderLinear, "lin-token", nil)
	if withSink {
		e.todoistConn = testutil.Connect(t, tx, conns, "user-1", model.ProviderTodoist, "td-token",
			&model.IntegrationConnectionConfig{Todoist: &model.TodoistConfig{
				SyncTasksEnabled:                true,
				CreateNotificationFromInboxTask: true,
			}})
	}

	registry := source.NewRegistry(e.github, e.linear, e.todoist, e.slack)
	e.svc = inbox.New(registry, conns, inbox.Options{
		SinkProvider: model.ProviderTodoist,
		Now:          func() time.Time { return now },
	})
	return e
}

func itemOf(conn *model.IntegrationConnection, sourceID string, data model.ThirdPartyItemData) model.ThirdPartyItem {
	return source.NewItem(sourceID, data, &source.AccessToken{Connection: *conn})
}

func githubItem(conn *model.IntegrationConnection, id, title string, unread bool) model.ThirdPartyItem {
	return itemOf(conn, id, &model.GithubNotification{
		ID:        id,
		Subject:   model.GithubNotificationSubject{Title: title, Type: "Issue"},
		Reason:    "mention",
		Unread:    unread,
		UpdatedAt: now,
	})
}

func linearItem(conn *model.IntegrationConnection, id, title string, state model.LinearWorkflowStateType) model.ThirdPartyItem {
	return itemOf(conn, id, &model.LinearIssue{
		ID:         id,
		Identifier: "ISS-1",
		Title:      title,
		State:      model.LinearWorkflowState{ID: "s-" + string(state), Name: string(state), Type: state},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func todoistItem(conn *model.IntegrationConnection, id, content, projectID string, checked bool) model.ThirdPartyItem {
	return itemOf(conn, id, &model.TodoistItem{
		ID:        id,
		ProjectID: projectID,
		Content:   content,
		Priority:  4,
		Checked:   checked,
		AddedAt:   now,
	})
}

func (e *env) storeItem(t *testing.T, item model.ThirdPartyItem) model.ThirdPartyItem {
	t.Helper()
	status, err := e.svc.Items.CreateOrUpdateThirdPartyItem(e.ctx, e.tx, item)
	require.NoError(t, err)
	return status.Value()
}

func (e *env) notificationHandler(userID string) inbox.ItemHandler {
	return func(item model.ThirdPartyItem) error {
		_, err := e.svc.Notifications.SyncNotificationFromItem(e.ctx, e.tx, item, userID)
		return err
	}
}

func (e *env) taskHandler(userID string) inbox.ItemHandler {
	return func(item model.ThirdPartyItem) error {
		_, err := e.svc.Tasks.SyncTaskFromItem(e.ctx, e.tx, item, userID)
		return err
	}
}
