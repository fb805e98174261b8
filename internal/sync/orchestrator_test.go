package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/credential"
	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/integration"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
	inboxsync "github.com/nhle/universal-inbox/internal/sync"
	"github.com/nhle/universal-inbox/tests/testutil"
)

var updatedAt = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

// fakeSource lists one item per id, built with the user's token.
type fakeSource struct {
	conns    source.Connections
	provider model.IntegrationProviderKind
	kind     model.ThirdPartyItemKind
	ids      []string
	err      error
	fetches  int
}

func (f *fakeSource) ItemKind() model.ThirdPartyItemKind { return f.kind }
func (f *fakeSource) IsSyncIncremental() bool            { return false }

func (f *fakeSource) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	_ *time.Time,
) ([]model.ThirdPartyItem, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	token, err := source.RequireAccessToken(ctx, f.conns, tx, f.provider, userID)
	if err != nil {
		return nil, err
	}

	var items []model.ThirdPartyItem
	for _, id := range f.ids {
		var data model.ThirdPartyItemData
		if f.kind == model.KindLinearIssue {
			data = &model.LinearIssue{
				ID:        id,
				Title:     id,
				State:     model.LinearWorkflowState{ID: "s1", Name: "Todo", Type: model.LinearWorkflowStateUnstarted},
				CreatedAt: updatedAt,
				UpdatedAt: updatedAt,
			}
		} else {
			data = &model.GithubNotification{
				ID:        id,
				Subject:   model.GithubNotificationSubject{Title: id, Type: "Issue"},
				Unread:    true,
				UpdatedAt: updatedAt,
			}
		}
		items = append(items, source.NewItem(id, data, token))
	}
	return items, nil
}

// fakeGithub fails to derive a notification from the item titled "boom".
type fakeGithub struct {
	src *fakeSource
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
	if d.Subject.Title == "boom" {
		return nil, errors.New("malformed notification")
	}
	return source.NewNotification(item, d.Subject.Title, model.NotificationUnread, nil, userID), nil
}

func (f *fakeGithub) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeGithub) UnsubscribeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeGithub) SnoozeNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, time.Time, string) error {
	return nil
}

type fakeLinear struct {
	src *fakeSource
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
	return &model.CreateOrUpdateTaskRequest{
		Title:      issue.Title,
		Status:     model.TaskActive,
		Priority:   model.PriorityP2,
		Kind:       model.ProviderLinear,
		SourceItem: item,
	}, nil
}

func (f *fakeLinear) DeleteTask(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeLinear) CompleteTask(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeLinear) UncompleteTask(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

func (f *fakeLinear) UpdateTask(context.Context, *store.Tx, model.ThirdPartyItem, model.TaskPatch, string) error {
	return nil
}

type env struct {
	ctx    context.Context
	db     *store.SQLiteStore
	conns  *integration.Service
	github *fakeGithub
	linear *fakeLinear
	orch   *inboxsync.Orchestrator

	githubConnID string
}

// newEnv connects user-1 to GitHub and Linear. The setup is committed as
// the orchestrator opens its own transactions.
func newEnv(t *testing.T, cfg model.SyncConfig) *env {
	t.Helper()

	db := testutil.NewTestStore(t)
	conns, err := integration.NewService(credential.NewMemory(), cfg)
	require.NoError(t, err)

	e := &env{
		ctx:    context.Background(),
		db:     db,
		conns:  conns,
		github: &fakeGithub{src: &fakeSource{conns: conns, provider: model.ProviderGithub, kind: model.KindGithubNotification}},
		linear: &fakeLinear{src: &fakeSource{conns: conns, provider: model.ProviderLinear, kind: model.KindLinearIssue}},
	}
	e.githubConnID = e.connect(t, "user-1", model.ProviderGithub)
	e.connect(t, "user-1", model.ProviderLinear)

	registry := source.NewRegistry(e.github, e.linear)
	services := inbox.New(registry, conns, inbox.Options{})
	e.orch = inboxsync.New(db, conns, registry, services, cfg)
	return e
}

func (e *env) connect(t *testing.T, userID string, kind model.IntegrationProviderKind) string {
	t.Helper()
	tx := testutil.NewTestTx(t, e.db)
	conn := testutil.Connect(t, tx, e.conns, userID, kind, "token-"+userID, nil)
	require.NoError(t, tx.Commit())
	return conn.ID
}

// inspect runs fn on a transaction rolled back afterwards.
func (e *env) inspect(t *testing.T, fn func(tx *store.Tx)) {
	t.Helper()
	tx, err := e.db.Begin(e.ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	fn(tx)
}

func (e *env) notificationTitles(t *testing.T, userID string) []string {
	t.Helper()
	var titles []string
	e.inspect(t, func(tx *store.Tx) {
		list, err := tx.ListNotifications(e.ctx, model.NotificationFilter{UserID: userID, IncludeSnoozed: true})
		require.NoError(t, err)
		for _, n := range list {
			titles = append(titles, n.Title)
		}
	})
	return titles
}

func (e *env) githubConnection(t *testing.T) *model.IntegrationConnection {
	t.Helper()
	var conn *model.IntegrationConnection
	e.inspect(t, func(tx *store.Tx) {
		var err error
		conn, err = tx.GetIntegrationConnection(e.ctx, e.githubConnID)
		require.NoError(t, err)
	})
	return conn
}

func TestSyncNotifications(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.github.src.ids = []string{"n1", "n2"}

	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.ProviderGithub, results[0].Provider)
	assert.Equal(t, 2, results[0].Fetched)
	assert.Equal(t, 2, results[0].Modified)
	assert.Empty(t, results[0].Skipped)

	assert.ElementsMatch(t, []string{"n1", "n2"}, e.notificationTitles(t, "user-1"))

	conn := e.githubConnection(t)
	bk := conn.Sync(model.SyncNotifications)
	assert.NotNil(t, bk.StartedAt)
	assert.NotNil(t, bk.CompletedAt)
	assert.Zero(t, bk.Failures)

	statuses := e.orch.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, inboxsync.SyncIdle, statuses[0].State)
	assert.False(t, statuses[0].LastSync.IsZero())
}

func TestSyncNotificationsRemovesStale(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.github.src.ids = []string{"n1", "n2"}
	_, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)

	e.github.src.ids = []string{"n2"}
	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Stale)

	e.inspect(t, func(tx *store.Tx) {
		list, err := tx.ListNotifications(e.ctx, model.NotificationFilter{
			UserID:   "user-1",
			Statuses: []model.NotificationStatus{model.NotificationUnread},
		})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "n2", list[0].Title)
	})
}

func TestSyncSkippedDuringCooldown(t *testing.T) {
	e := newEnv(t, model.SyncConfig{MinNotificationsInterval: time.Hour})
	e.github.src.ids = []string{"n1"}

	_, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)

	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Skipped)
	assert.Equal(t, 1, e.github.src.fetches)
}

func TestSyncFailureKeepsProcessedItems(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.github.src.ids = []string{"n1", "boom", "n3"}

	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Error)

	assert.Equal(t, []string{"n1"}, e.notificationTitles(t, "user-1"))

	conn := e.githubConnection(t)
	bk := conn.Sync(model.SyncNotifications)
	assert.Equal(t, 1, bk.Failures)
	require.NotNil(t, bk.FailureMessage)
	assert.Contains(t, *bk.FailureMessage, "malformed notification")
	assert.Nil(t, bk.CompletedAt)
	assert.Equal(t, model.ConnectionValidated, conn.Status)

	statuses := e.orch.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, inboxsync.SyncError, statuses[0].State)
	assert.Error(t, statuses[0].Error)
}

func TestSyncDisabledSourceSucceeds(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.github.src.err = source.ErrSyncDisabled

	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Fetched)

	bk := e.githubConnection(t).Sync(model.SyncNotifications)
	assert.NotNil(t, bk.CompletedAt)
	assert.Zero(t, bk.Failures)
}

func TestSyncAuthErrorMarksConnectionFailing(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.github.src.err = &source.AuthError{Provider: model.ProviderGithub, Message: "bad credentials"}

	_, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))

	conn := e.githubConnection(t)
	assert.Equal(t, model.ConnectionFailing, conn.Status)
	require.NotNil(t, conn.FailureMessage)
	assert.Contains(t, *conn.FailureMessage, "bad credentials")

	// A failing connection is no longer synced.
	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-1")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, e.github.src.fetches)
}

func TestSyncTasks(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.linear.src.ids = []string{"Ship it"}

	linear := model.ProviderLinear
	results, err := e.orch.SyncTasks(e.ctx, &linear, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SyncTasks, results[0].SyncType)

	e.inspect(t, func(tx *store.Tx) {
		tasks, err := tx.ListTasks(e.ctx, model.TaskFilter{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "Ship it", tasks[0].Title)
		assert.Nil(t, tasks[0].SinkItem)
	})
}

func TestSyncProviderWithoutSyncType(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})

	github := model.ProviderGithub
	_, err := e.orch.SyncTasks(e.ctx, &github, "user-1")
	require.Error(t, err)
	assert.Zero(t, e.github.src.fetches)
}

func TestSyncNotConnectedUser(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})

	results, err := e.orch.SyncNotifications(e.ctx, nil, "user-2")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSyncAll(t *testing.T) {
	e := newEnv(t, model.SyncConfig{})
	e.connect(t, "user-2", model.ProviderGithub)
	e.github.src.ids = []string{"n1"}

	require.NoError(t, e.orch.SyncAll(e.ctx, model.SyncNotifications))

	assert.Equal(t, []string{"n1"}, e.notificationTitles(t, "user-1"))
	assert.Equal(t, []string{"n1"}, e.notificationTitles(t, "user-2"))
	assert.Len(t, e.orch.Statuses(), 2)
}
