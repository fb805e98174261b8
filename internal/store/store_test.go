package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/store"
	"github.com/nhle/universal-inbox/tests/testutil"
)

var updatedAt = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

func newTx(t *testing.T) (context.Context, *store.Tx) {
	t.Helper()
	s := testutil.NewTestStore(t)
	return context.Background(), testutil.NewTestTx(t, s)
}

func createConnection(
	t *testing.T,
	ctx context.Context,
	tx *store.Tx,
	userID string,
	kind model.IntegrationProviderKind,
) *model.IntegrationConnection {
	t.Helper()
	conn, err := tx.CreateIntegrationConnection(ctx, model.IntegrationConnection{
		UserID:       userID,
		ProviderKind: kind,
		Status:       model.ConnectionValidated,
		Config:       model.DefaultConfig(kind),
	})
	require.NoError(t, err)
	return conn
}

func githubItem(conn *model.IntegrationConnection, id, title string) model.ThirdPartyItem {
	return model.ThirdPartyItem{
		SourceID:                id,
		UserID:                  conn.UserID,
		IntegrationConnectionID: conn.ID,
		Data: &model.GithubNotification{
			ID:        id,
			Subject:   model.GithubNotificationSubject{Title: title, Type: "PullRequest"},
			Reason:    "review_requested",
			Unread:    true,
			UpdatedAt: updatedAt,
		},
	}
}

func storeItem(t *testing.T, ctx context.Context, tx *store.Tx, item model.ThirdPartyItem) model.ThirdPartyItem {
	t.Helper()
	status, err := tx.CreateOrUpdateThirdPartyItem(ctx, item)
	require.NoError(t, err)
	return status.Value()
}

func TestCreateOrUpdateThirdPartyItem(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	created, err := tx.CreateOrUpdateThirdPartyItem(ctx, githubItem(conn, "n1", "Fix login"))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertCreated, created.Kind)
	require.NotEmpty(t, created.Value().ID)

	same, err := tx.CreateOrUpdateThirdPartyItem(ctx, githubItem(conn, "n1", "Fix login"))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertUntouched, same.Kind)
	assert.Equal(t, created.Value().ID, same.Value().ID)

	updated, err := tx.CreateOrUpdateThirdPartyItem(ctx, githubItem(conn, "n1", "Fix login page"))
	require.NoError(t, err)
	assert.Equal(t, model.UpsertUpdated, updated.Kind)
	assert.Equal(t, created.Value().ID, updated.Value().ID)

	stored, err := tx.GetThirdPartyItem(ctx, created.Value().ID)
	require.NoError(t, err)
	d, ok := stored.Data.(*model.GithubNotification)
	require.True(t, ok)
	assert.Equal(t, "Fix login page", d.Subject.Title)
	assert.Equal(t, model.KindGithubNotification, stored.Kind())
}

func TestGetThirdPartyItemNotFound(t *testing.T) {
	ctx, tx := newTx(t)

	_, err := tx.GetThirdPartyItem(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = tx.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = tx.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateOrUpdateNotificationKeepsSnooze(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)
	item := storeItem(t, ctx, tx, githubItem(conn, "n1", "Fix login"))

	n := model.Notification{
		Title:      "Fix login",
		Status:     model.NotificationUnread,
		UserID:     "user-1",
		Kind:       model.ProviderGithub,
		SourceItem: item,
	}
	created, err := tx.CreateOrUpdateNotification(ctx, n, false)
	require.NoError(t, err)
	require.True(t, created.IsCreated())

	snoozed := updatedAt.Add(time.Hour)
	_, err = tx.UpdateNotification(ctx, created.Value().ID, model.NotificationPatch{SnoozedUntil: &snoozed})
	require.NoError(t, err)

	n.Status = model.NotificationRead
	updated, err := tx.CreateOrUpdateNotification(ctx, n, false)
	require.NoError(t, err)
	assert.Equal(t, model.UpsertUpdated, updated.Kind)
	assert.Equal(t, created.Value().ID, updated.Value().ID)

	stored, err := tx.GetNotification(ctx, created.Value().ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationRead, stored.Status)
	require.NotNil(t, stored.SnoozedUntil)
	assert.True(t, snoozed.Equal(*stored.SnoozedUntil))
}

func TestUpdateStaleNotificationsStatus(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	var ids []string
	for _, id := range []string{"n1", "n2"} {
		item := storeItem(t, ctx, tx, githubItem(conn, id, id))
		ids = append(ids, item.ID)
		_, err := tx.CreateOrUpdateNotification(ctx, model.Notification{
			Title:      id,
			Status:     model.NotificationUnread,
			UserID:     "user-1",
			Kind:       model.ProviderGithub,
			SourceItem: item,
		}, false)
		require.NoError(t, err)
	}

	stale, err := tx.UpdateStaleNotificationsStatus(ctx, ids[1:], model.KindGithubNotification,
		model.NotificationDeleted, "user-1")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "n1", stale[0].Title)
	assert.Equal(t, model.NotificationDeleted, stale[0].Status)

	// Deleted notifications are not stale twice.
	stale, err = tx.UpdateStaleNotificationsStatus(ctx, ids[1:], model.KindGithubNotification,
		model.NotificationDeleted, "user-1")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestGetStaleTaskSourceItems(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	active := storeItem(t, ctx, tx, githubItem(conn, "i1", "Kept"))
	gone := storeItem(t, ctx, tx, githubItem(conn, "i2", "Gone"))
	for _, item := range []model.ThirdPartyItem{active, gone} {
		_, err := tx.CreateOrUpdateTask(ctx, model.Task{
			Title:      item.SourceID,
			Status:     model.TaskActive,
			Priority:   model.PriorityP4,
			UserID:     "user-1",
			Kind:       model.ProviderGithub,
			SourceItem: item,
		})
		require.NoError(t, err)
	}

	stale, err := tx.GetStaleTaskSourceItems(ctx, []string{active.ID}, model.KindGithubNotification, "user-1")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, gone.ID, stale[0].ID)

	stale, err = tx.GetStaleTaskSourceItems(ctx, []string{active.ID}, model.KindGithubNotification, "user-2")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestSavepointRollsBackOnError(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	boom := errors.New("boom")
	err := tx.Savepoint(ctx, func() error {
		storeItem(t, ctx, tx, githubItem(conn, "n1", "Rolled back"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = tx.GetThirdPartyItemBySourceID(ctx, "user-1", conn.ID, "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, tx.Savepoint(ctx, func() error {
		storeItem(t, ctx, tx, githubItem(conn, "n2", "Kept"))
		return nil
	}))
	_, err = tx.GetThirdPartyItemBySourceID(ctx, "user-1", conn.ID, "n2")
	assert.NoError(t, err)
}

func TestSyncBookkeeping(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	require.NoError(t, tx.MarkSyncStarted(ctx, conn.ID, model.SyncNotifications, updatedAt))
	require.NoError(t, tx.MarkSyncFailed(ctx, conn.ID, model.SyncNotifications, updatedAt, "timeout"))
	require.NoError(t, tx.MarkSyncFailed(ctx, conn.ID, model.SyncNotifications, updatedAt, "timeout again"))

	stored, err := tx.GetIntegrationConnection(ctx, conn.ID)
	require.NoError(t, err)
	bk := stored.Sync(model.SyncNotifications)
	assert.Equal(t, 2, bk.Failures)
	require.NotNil(t, bk.FailureMessage)
	assert.Equal(t, "timeout again", *bk.FailureMessage)
	assert.Nil(t, stored.Sync(model.SyncTasks).StartedAt)

	require.NoError(t, tx.MarkSyncCompleted(ctx, conn.ID, model.SyncNotifications, updatedAt.Add(time.Minute)))
	stored, err = tx.GetIntegrationConnection(ctx, conn.ID)
	require.NoError(t, err)
	bk = stored.Sync(model.SyncNotifications)
	assert.Zero(t, bk.Failures)
	assert.Nil(t, bk.FailureMessage)
	require.NotNil(t, bk.CompletedAt)
	require.NotNil(t, bk.StartedAt)
	assert.True(t, updatedAt.Equal(*bk.StartedAt))
}

func TestListUsersWithValidatedConnections(t *testing.T) {
	ctx, tx := newTx(t)
	createConnection(t, ctx, tx, "user-1", model.ProviderGithub)
	createConnection(t, ctx, tx, "user-2", model.ProviderLinear)
	failing := createConnection(t, ctx, tx, "user-3", model.ProviderGithub)
	msg := "token revoked"
	require.NoError(t, tx.UpdateIntegrationConnectionStatus(ctx, failing.ID, model.ConnectionFailing, &msg))

	users, err := tx.ListUsersWithValidatedConnections(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, users)

	linear := model.ProviderLinear
	users, err = tx.ListUsersWithValidatedConnections(ctx, &linear)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, users)
}

func TestUpsertsReportStoredRows(t *testing.T) {
	ctx, tx := newTx(t)
	conn := createConnection(t, ctx, tx, "user-1", model.ProviderGithub)

	created, err := tx.CreateOrUpdateThirdPartyItem(ctx, githubItem(conn, "n1", "Fix login"))
	require.NoError(t, err)
	require.Equal(t, model.UpsertCreated, created.Kind)
	stored, err := tx.GetThirdPartyItem(ctx, created.Value().ID)
	require.NoError(t, err)
	assert.Equal(t, "n1", stored.SourceID)

	task, err := tx.CreateOrUpdateTask(ctx, model.Task{
		Title:      "Fix login",
		Status:     model.TaskActive,
		Priority:   model.PriorityP4,
		UserID:     "user-1",
		Kind:       model.ProviderGithub,
		SourceItem: *stored,
	})
	require.NoError(t, err)
	require.Equal(t, model.UpsertCreated, task.Kind)
	storedTask, err := tx.GetTaskBySourceItemID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Value().ID, storedTask.ID)

	title := "Fix login page"
	updated, err := tx.CreateOrUpdateTask(ctx, model.Task{
		Title:      title,
		Status:     model.TaskActive,
		Priority:   model.PriorityP4,
		UserID:     "user-1",
		Kind:       model.ProviderGithub,
		SourceItem: *stored,
	})
	require.NoError(t, err)
	assert.Equal(t, model.UpsertUpdated, updated.Kind)
	assert.Equal(t, storedTask.ID, updated.Value().ID)
	require.NotNil(t, updated.Old)
	assert.Equal(t, "Fix login", updated.Old.Title)
}
