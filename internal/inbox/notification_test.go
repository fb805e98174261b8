package inbox_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/model"
)

func createGithubNotification(t *testing.T, e *env, id string) model.Notification {
	t.Helper()
	item := e.storeItem(t, githubItem(e.githubConn, id, "Fix login", true))
	status, err := e.svc.Notifications.CreateNotificationFromThirdPartyItem(e.ctx, e.tx, item, e.github, "user-1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.IsCreated())
	return status.Value()
}

func TestCreateNotificationKeepsLocalState(t *testing.T) {
	e := newEnv(t, false)
	n := createGithubNotification(t, e, "n1")

	snoozed := now.Add(2 * time.Hour)
	taskID := "task-1"
	_, err := e.tx.UpdateNotification(e.ctx, n.ID, model.NotificationPatch{SnoozedUntil: &snoozed, TaskID: &taskID})
	require.NoError(t, err)

	// The provider reports the thread as read on the next sync.
	item := e.storeItem(t, githubItem(e.githubConn, "n1", "Fix login", false))
	status, err := e.svc.Notifications.CreateNotificationFromThirdPartyItem(e.ctx, e.tx, item, e.github, "user-1")
	require.NoError(t, err)
	require.NotNil(t, status)

	updated := status.Value()
	assert.Equal(t, n.ID, updated.ID)
	assert.Equal(t, model.NotificationRead, updated.Status)
	require.NotNil(t, updated.SnoozedUntil)
	assert.True(t, snoozed.Equal(*updated.SnoozedUntil))
	require.NotNil(t, updated.TaskID)
	assert.Equal(t, taskID, *updated.TaskID)
}

func TestPatchNotificationAppliesToSourceFirst(t *testing.T) {
	e := newEnv(t, false)
	n := createGithubNotification(t, e, "n1")
	deleted := model.NotificationDeleted

	e.github.failOn("delete", errors.New("github unavailable"))
	_, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID,
		model.NotificationPatch{Status: &deleted}, true, "user-1")
	require.Error(t, err)

	stored, err := e.svc.Notifications.GetNotification(e.ctx, e.tx, n.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationUnread, stored.Status)

	e.github.fail = nil
	status, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID,
		model.NotificationPatch{Status: &deleted}, true, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationDeleted, status.Value().Status)
	assert.Equal(t, []string{"delete:n1", "delete:n1"}, e.github.calls)
}

func TestPatchNotificationActions(t *testing.T) {
	unsubscribed := model.NotificationUnsubscribed
	read := model.NotificationRead
	snoozed := now.Add(time.Hour)

	tests := []struct {
		name          string
		patch         model.NotificationPatch
		applyToSource bool
		wantCalls     []string
	}{
		{
			name:          "unsubscribe upstream",
			patch:         model.NotificationPatch{Status: &unsubscribed},
			applyToSource: true,
			wantCalls:     []string{"unsubscribe:n1"},
		},
		{
			name:          "snooze upstream",
			patch:         model.NotificationPatch{SnoozedUntil: &snoozed},
			applyToSource: true,
			wantCalls:     []string{"snooze:n1"},
		},
		{
			name:          "read has no upstream action",
			patch:         model.NotificationPatch{Status: &read},
			applyToSource: true,
		},
		{
			name:  "local only",
			patch: model.NotificationPatch{Status: &unsubscribed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, false)
			n := createGithubNotification(t, e, "n1")

			status, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID, tt.patch, tt.applyToSource, "user-1")
			require.NoError(t, err)
			assert.True(t, status.IsModified())
			assert.Equal(t, tt.wantCalls, e.github.calls)
		})
	}
}

func TestPatchNotificationOfAnotherUser(t *testing.T) {
	e := newEnv(t, false)
	n := createGithubNotification(t, e, "n1")
	deleted := model.NotificationDeleted

	_, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID,
		model.NotificationPatch{Status: &deleted}, true, "user-2")
	require.ErrorIs(t, err, inbox.ErrForbidden)
	assert.Empty(t, e.github.calls)
}

func TestPatchNotificationEmptyPatch(t *testing.T) {
	e := newEnv(t, false)
	n := createGithubNotification(t, e, "n1")

	status, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID, model.NotificationPatch{}, true, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.UpsertUntouched, status.Kind)
}

func TestListNotificationsHidesSnoozed(t *testing.T) {
	e := newEnv(t, false)
	n := createGithubNotification(t, e, "n1")
	createGithubNotification(t, e, "n2")

	later := now.Add(time.Hour)
	_, err := e.svc.Notifications.PatchNotification(e.ctx, e.tx, n.ID,
		model.NotificationPatch{SnoozedUntil: &later}, false, "user-1")
	require.NoError(t, err)

	list := listNotifications(t, e, model.NotificationUnread)
	require.Len(t, list, 1)
	assert.Equal(t, "n2", list[0].SourceItem.SourceID)
}
