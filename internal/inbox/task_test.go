package inbox_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/inbox"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
)

func createLinearTask(t *testing.T, e *env) model.Task {
	t.Helper()
	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateUnstarted), "user-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.UpsertCreated, result.Upsert)
	return result.Task
}

func TestCreateTaskMirrorsIntoSink(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)

	assert.Equal(t, model.TaskActive, task.Status)
	assert.Equal(t, model.ProviderLinear, task.Kind)
	require.NotNil(t, task.SinkItem)
	assert.Equal(t, model.KindTodoistItem, task.SinkItem.Kind())
	assert.Equal(t, "new-1", task.SinkItem.SourceID)
	assert.Equal(t, []string{"Work"}, e.todoist.projects)
	require.Len(t, e.todoist.created, 1)
	assert.Equal(t, "Ship it", e.todoist.created[0].Title)
	assert.Equal(t, "p-work", e.todoist.created[0].Project.SourceID)

	mirrored, err := e.tx.GetTaskBySinkItemID(e.ctx, task.SinkItem.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, mirrored.ID)
}

func TestCreateTaskWithoutSinkConnection(t *testing.T) {
	e := newEnv(t, false)
	task := createLinearTask(t, e)

	assert.Nil(t, task.SinkItem)
	assert.Empty(t, e.todoist.created)
}

func TestTaskStatusChangePropagatesToSink(t *testing.T) {
	e := newEnv(t, true)
	createLinearTask(t, e)

	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateCompleted), "user-1")
	require.NoError(t, err)

	assert.Equal(t, model.UpsertUpdated, result.Upsert)
	assert.Equal(t, model.TaskDone, result.Task.Status)
	require.NotNil(t, result.Task.SinkItem)
	assert.Equal(t, "new-1", result.Task.SinkItem.SourceID)
	assert.Equal(t, []string{"complete:new-1"}, e.todoist.calls)
	assert.Len(t, e.todoist.created, 1)
}

func TestTaskStatusChangeRefusedBySink(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)
	e.todoist.failOn("complete", errors.New("todoist unavailable"))

	_, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateCompleted), "user-1")
	require.Error(t, err)

	stored, err := e.svc.Tasks.GetTask(e.ctx, e.tx, task.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskActive, stored.Status)
}

func TestSyncContinuesWhenSinkCannotReopenTask(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)
	_, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateCompleted), "user-1")
	require.NoError(t, err)
	e.todoist.failOn("uncomplete", source.Unsupported(model.ProviderTodoist, "uncomplete task"))

	e.linear.src.items = []model.ThirdPartyItem{
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateUnstarted),
		linearItem(e.linearConn, "lin-2", "Review it", model.LinearWorkflowStateUnstarted),
	}
	result, err := e.svc.Items.SyncItems(e.ctx, e.tx, e.linear.src, model.SyncTasks, "user-1", nil, e.taskHandler("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Modified)

	stored, err := e.svc.Tasks.GetTask(e.ctx, e.tx, task.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, stored.Status)

	item, err := e.tx.GetThirdPartyItemBySourceID(e.ctx, "user-1", e.linearConn.ID, "lin-2")
	require.NoError(t, err)
	second, err := e.tx.GetTaskBySourceItemID(e.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskActive, second.Status)
	require.NotNil(t, second.SinkItem)
	assert.Equal(t, "new-2", second.SinkItem.SourceID)

	// The refused item is stored, so the next run does not trip on it again.
	result, err = e.svc.Items.SyncItems(e.ctx, e.tx, e.linear.src, model.SyncTasks, "user-1", nil, e.taskHandler("user-1"))
	require.NoError(t, err)
	assert.Zero(t, result.Modified)
	assert.Equal(t, []string{"complete:new-1", "uncomplete:new-1"}, e.todoist.calls)
}

func TestReopenedTaskGetsSinkItem(t *testing.T) {
	e := newEnv(t, true)

	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateCompleted), "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, result.Task.Status)
	assert.Nil(t, result.Task.SinkItem)
	assert.Empty(t, e.todoist.created)

	result, err = e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		linearItem(e.linearConn, "lin-1", "Ship it", model.LinearWorkflowStateUnstarted), "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskActive, result.Task.Status)
	require.NotNil(t, result.Task.SinkItem)
	assert.Equal(t, "new-1", result.Task.SinkItem.SourceID)
	assert.Len(t, e.todoist.created, 1)
	assert.Empty(t, e.todoist.calls)

	stored, err := e.svc.Tasks.GetTask(e.ctx, e.tx, result.Task.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stored.SinkItem)
	assert.Equal(t, result.Task.SinkItem.ID, stored.SinkItem.ID)
}

func TestSinkCompletionUpdatesMirroredTask(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)

	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		todoistItem(e.todoistConn, "new-1", "Ship it", "p-work", true), "user-1")
	require.NoError(t, err)

	assert.Equal(t, task.ID, result.Task.ID)
	assert.Equal(t, model.TaskDone, result.Task.Status)
	assert.Equal(t, []string{"complete:lin-1"}, e.linear.calls)

	tasks, err := e.svc.Tasks.ListTasks(e.ctx, e.tx, model.TaskFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestTrackerInboxTaskGetsNotification(t *testing.T) {
	e := newEnv(t, true)

	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		todoistItem(e.todoistConn, "t1", "Call mom", "p-inbox", false), "user-1")
	require.NoError(t, err)

	task := result.Task
	require.NotNil(t, task.SinkItem)
	assert.Equal(t, task.SourceItem.ID, task.SinkItem.ID)
	assert.Equal(t, model.TodoistInboxProject, task.Project)
	assert.Empty(t, e.todoist.created)

	require.NotNil(t, result.Notification)
	assert.Equal(t, model.NotificationUnread, result.Notification.Status)
	require.NotNil(t, result.Notification.TaskID)
	assert.Equal(t, task.ID, *result.Notification.TaskID)

	// Moving the task out of the inbox removes the notification.
	result, err = e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		todoistItem(e.todoistConn, "t1", "Call mom", "p-work", false), "user-1")
	require.NoError(t, err)
	require.NotNil(t, result.Notification)
	assert.Equal(t, model.NotificationDeleted, result.Notification.Status)
}

func TestPatchTaskFansOut(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)

	done := model.TaskDone
	title := "Ship it today"
	status, err := e.svc.Tasks.PatchTask(e.ctx, e.tx, task.ID, model.TaskPatch{Status: &done, Title: &title}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, model.TaskDone, status.Value().Status)
	assert.Equal(t, title, status.Value().Title)
	assert.NotNil(t, status.Value().CompletedAt)
	assert.Equal(t, []string{"complete:lin-1"}, e.linear.calls)
	assert.Equal(t, []string{"complete:new-1", "update:new-1"}, e.todoist.calls)
}

func TestPatchTaskStatusRefusedBySinkSkipsSource(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)

	done := model.TaskDone
	_, err := e.svc.Tasks.PatchTask(e.ctx, e.tx, task.ID, model.TaskPatch{Status: &done}, "user-1")
	require.NoError(t, err)

	e.todoist.failOn("uncomplete", source.Unsupported(model.ProviderTodoist, "uncomplete task"))
	active := model.TaskActive
	_, err = e.svc.Tasks.PatchTask(e.ctx, e.tx, task.ID, model.TaskPatch{Status: &active}, "user-1")
	require.Error(t, err)
	assert.True(t, source.IsUnsupportedAction(err))

	assert.Equal(t, []string{"complete:lin-1"}, e.linear.calls)
	assert.Equal(t, []string{"complete:new-1", "uncomplete:new-1"}, e.todoist.calls)

	stored, err := e.svc.Tasks.GetTask(e.ctx, e.tx, task.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, stored.Status)
}

func TestPatchTaskSourceRefusalFollowsSink(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)
	e.linear.failOn("delete", source.Unsupported(model.ProviderLinear, "delete task"))

	deleted := model.TaskDeleted
	status, err := e.svc.Tasks.PatchTask(e.ctx, e.tx, task.ID, model.TaskPatch{Status: &deleted}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskDeleted, status.Value().Status)
	assert.Equal(t, []string{"delete:new-1"}, e.todoist.calls)
	assert.Equal(t, []string{"delete:lin-1"}, e.linear.calls)
}

func TestPatchTrackerTaskOnlyTouchesTracker(t *testing.T) {
	e := newEnv(t, true)
	result, err := e.svc.Items.CreateTaskItem(e.ctx, e.tx,
		todoistItem(e.todoistConn, "t1", "Call mom", "p-work", false), "user-1")
	require.NoError(t, err)

	deleted := model.TaskDeleted
	_, err = e.svc.Tasks.PatchTask(e.ctx, e.tx, result.Task.ID, model.TaskPatch{Status: &deleted}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"delete:t1"}, e.todoist.calls)
}

func TestPatchTaskOfAnotherUser(t *testing.T) {
	e := newEnv(t, true)
	task := createLinearTask(t, e)

	done := model.TaskDone
	_, err := e.svc.Tasks.PatchTask(e.ctx, e.tx, task.ID, model.TaskPatch{Status: &done}, "user-2")
	require.ErrorIs(t, err, inbox.ErrForbidden)
	assert.Empty(t, e.linear.calls)
}

func TestSearchProjectsInSink(t *testing.T) {
	e := newEnv(t, true)

	projects, err := e.svc.Tasks.SearchProjects(e.ctx, e.tx, "work", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []model.ProjectSummary{
		{SourceID: "p-work", Name: "Work"},
		{SourceID: "p-workshop", Name: "Workshop"},
	}, projects)
}

func TestSearchProjectsWithoutSinkConnection(t *testing.T) {
	e := newEnv(t, false)

	_, err := e.svc.Tasks.SearchProjects(e.ctx, e.tx, "work", "user-1")
	assert.True(t, source.IsAuthError(err))
}
