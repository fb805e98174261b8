package linear_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/linear"
	"github.com/nhle/universal-inbox/internal/store"
	"github.com/nhle/universal-inbox/tests/testutil"
)

type request struct {
	Operation string
	Variables map[string]any
}

// fakeLinear answers GraphQL operations by name with canned data.
type fakeLinear struct {
	t         *testing.T
	mu        sync.Mutex
	responses map[string][]any
	requests  []request
}

func (f *fakeLinear) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(f.t, "Bearer lin-token", r.Header.Get("Authorization"))

	var body struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// "query Notifications($first..." -> "Notifications"
	fields := strings.FieldsFunc(body.Query, func(r rune) bool { return r == ' ' || r == '(' || r == '{' })
	op := fields[1]
	f.requests = append(f.requests, request{Operation: op, Variables: body.Variables})

	queue := f.responses[op]
	if len(queue) == 0 {
		assert.Failf(f.t, "unexpected operation", "%s", op)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[op] = queue[1:]
	}
	assert.NoError(f.t, json.NewEncoder(w).Encode(resp))
}

func (f *fakeLinear) respond(op string, responses ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = responses
}

func (f *fakeLinear) sent(op string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, r := range f.requests {
		if r.Operation == op {
			out = append(out, r.Variables)
		}
	}
	return out
}

var (
	t0 = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func issueJSON(id, title string, extra map[string]any) map[string]any {
	issue := map[string]any{
		"id":          id,
		"identifier":  "ENG-" + id,
		"title":       title,
		"description": "Details of " + title,
		"priority":    2.0,
		"url":         "https://linear.app/acme/issue/ENG-" + id,
		"createdAt":   t0,
		"updatedAt":   t0,
		"team":        map[string]any{"id": "team-1", "key": "ENG", "name": "Engineering"},
		"labels":      map[string]any{"nodes": []any{map[string]any{"name": "bug", "color": "#f00"}}},
		"state":       map[string]any{"id": "st-todo", "name": "Todo", "type": "unstarted"},
	}
	for k, v := range extra {
		issue[k] = v
	}
	return issue
}

func page(connection string, nodes []any, next string) map[string]any {
	return map[string]any{"data": map[string]any{
		connection: map[string]any{
			"nodes":    nodes,
			"pageInfo": map[string]any{"hasNextPage": next != "", "endCursor": next},
		},
	}}
}

func success(mutation string) map[string]any {
	return map[string]any{"data": map[string]any{mutation: map[string]any{"success": true}}}
}

type fixture struct {
	fake    *fakeLinear
	tx      *store.Tx
	adapter *linear.Adapter
}

func newFixture(t *testing.T, config *model.IntegrationConnectionConfig) *fixture {
	fake := &fakeLinear{t: t, responses: make(map[string][]any)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s := testutil.NewTestStore(t)
	tx := testutil.NewTestTx(t, s)
	conns := testutil.NewConnections(t)
	testutil.Connect(t, tx, conns, "user-1", model.ProviderLinear, "lin-token", config)

	return &fixture{
		fake:    fake,
		tx:      tx,
		adapter: linear.NewAdapter(conns, model.ProviderConfig{BaseURL: srv.URL, PageSize: 2}),
	}
}

func TestFetchNotificationsKeepsLatestPerIssue(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.respond("Notifications",
		page("notifications", []any{
			map[string]any{
				"__typename": "IssueNotification", "id": "n1", "type": "issueCommentMention",
				"updatedAt": t0, "issue": issueJSON("1", "Fix login", nil),
			},
			map[string]any{
				"__typename": "ProjectNotification", "id": "n2", "type": "projectUpdateCreated",
				"updatedAt": t0, "project": map[string]any{"id": "p1", "name": "Q3 launch", "url": "https://linear.app/acme/project/q3"},
			},
		}, "cursor-1"),
		page("notifications", []any{
			map[string]any{
				"__typename": "IssueNotification", "id": "n3", "type": "issueStatusChanged",
				"updatedAt": t1, "readAt": t1, "issue": issueJSON("1", "Fix login", nil),
			},
			map[string]any{"__typename": "OauthClientApprovalNotification", "id": "n4", "updatedAt": t1},
		}, ""),
	)

	items, err := f.adapter.NotificationItemSources()[0].FetchItems(context.Background(), f.tx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "n3", items[0].SourceID)
	assert.Equal(t, "n2", items[1].SourceID)

	requests := f.fake.sent("Notifications")
	require.Len(t, requests, 2)
	assert.Nil(t, requests[0]["after"])
	assert.Equal(t, "cursor-1", requests[1]["after"])

	n, err := f.adapter.ThirdPartyItemIntoNotification(context.Background(), f.tx, items[0], "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix login", n.Title)
	assert.Equal(t, model.NotificationRead, n.Status)
	require.NotNil(t, n.LastReadAt)
	assert.True(t, t1.Equal(*n.LastReadAt))

	n, err = f.adapter.ThirdPartyItemIntoNotification(context.Background(), f.tx, items[1], "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Q3 launch", n.Title)
	assert.Equal(t, model.NotificationUnread, n.Status)
	assert.Equal(t, "https://linear.app/acme/project/q3", items[1].HTMLURL())
}

func TestSnoozedNotificationKeepsProviderSnooze(t *testing.T) {
	adapter := linear.NewAdapter(nil, model.ProviderConfig{})
	until := t1.Add(24 * time.Hour)
	item := model.ThirdPartyItem{SourceID: "n1", Data: &model.LinearNotification{
		ID:             "n1",
		UpdatedAt:      t1,
		SnoozedUntilAt: &until,
		Issue:          &model.LinearIssue{ID: "1", Title: "Fix login"},
	}}

	n, err := adapter.ThirdPartyItemIntoNotification(context.Background(), nil, item, "user-1")
	require.NoError(t, err)
	assert.Equal(t, &until, n.SnoozedUntil)
	assert.True(t, adapter.IsSupportingSnoozedNotifications())
}

func TestNotificationActions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	item := model.ThirdPartyItem{SourceID: "n1", Data: &model.LinearNotification{ID: "n1"}}

	f.fake.respond("NotificationArchive", success("notificationArchive"))
	f.fake.respond("NotificationSnooze", success("notificationUpdate"))
	f.fake.respond("IssueUpdateSubscribers", success("issueUpdate"))
	f.fake.respond("NotificationSubscribers", map[string]any{"data": map[string]any{
		"notification": map[string]any{
			"__typename": "IssueNotification",
			"user":       map[string]any{"id": "me"},
			"issue": map[string]any{
				"id":          "1",
				"subscribers": map[string]any{"nodes": []any{map[string]any{"id": "me"}, map[string]any{"id": "bob"}}},
			},
		},
	}})

	require.NoError(t, f.adapter.SnoozeNotificationFromSource(ctx, f.tx, item, t1, "user-1"))
	assert.Equal(t, []map[string]any{{"id": "n1", "snoozedUntilAt": "2024-05-02T11:00:00Z"}}, f.fake.sent("NotificationSnooze"))

	require.NoError(t, f.adapter.UnsubscribeNotificationFromSource(ctx, f.tx, item, "user-1"))
	updates := f.fake.sent("IssueUpdateSubscribers")
	require.Len(t, updates, 1)
	assert.Equal(t, "1", updates[0]["id"])
	assert.Equal(t, []any{"bob"}, updates[0]["subscriberIds"])
	assert.Len(t, f.fake.sent("NotificationArchive"), 1)

	require.NoError(t, f.adapter.DeleteNotificationFromSource(ctx, f.tx, item, "user-1"))
	assert.Len(t, f.fake.sent("NotificationArchive"), 2)
}

func TestAssignedIssueTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	states := map[string]any{"nodes": []any{
		map[string]any{"id": "st-backlog", "name": "Backlog", "type": "backlog"},
		map[string]any{"id": "st-todo", "name": "Todo", "type": "unstarted"},
		map[string]any{"id": "st-done", "name": "Done", "type": "completed"},
		map[string]any{"id": "st-canceled", "name": "Canceled", "type": "canceled"},
	}}
	f.fake.respond("AssignedIssues", page("issues", []any{
		issueJSON("7", "Ship sync", map[string]any{
			"dueDate": "2024-05-10",
			"state": map[string]any{
				"id": "st-todo", "name": "Todo", "type": "unstarted",
				"team": map[string]any{"states": states},
			},
		}),
	}, ""))
	f.fake.respond("IssueUpdateState", success("issueUpdate"))

	items, err := f.adapter.TaskItemSources()[0].FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)

	req, err := f.adapter.ThirdPartyItemIntoTask(ctx, f.tx, items[0], "user-1")
	require.NoError(t, err)
	assert.Equal(t, "[Ship sync](https://linear.app/acme/issue/ENG-7)", req.Title)
	assert.Equal(t, "Details of Ship sync", req.Body)
	assert.Equal(t, model.TaskActive, req.Status)
	assert.Equal(t, model.PriorityP2, req.Priority)
	assert.Equal(t, []string{"bug"}, req.Tags)
	require.NotNil(t, req.DueAt)
	assert.Equal(t, "2024-05-10", req.DueAt.String())

	require.NoError(t, f.adapter.CompleteTask(ctx, f.tx, items[0], "user-1"))
	require.NoError(t, f.adapter.UncompleteTask(ctx, f.tx, items[0], "user-1"))
	require.NoError(t, f.adapter.DeleteTask(ctx, f.tx, items[0], "user-1"))

	var moved []any
	for _, v := range f.fake.sent("IssueUpdateState") {
		moved = append(moved, v["stateId"])
	}
	assert.Equal(t, []any{"st-done", "st-todo", "st-canceled"}, moved)
}

func TestCompleteIssueWithoutStates(t *testing.T) {
	f := newFixture(t, nil)
	item := model.ThirdPartyItem{SourceID: "7", Data: &model.LinearIssue{ID: "7", Identifier: "ENG-7"}}

	err := f.adapter.CompleteTask(context.Background(), f.tx, item, "user-1")
	assert.ErrorContains(t, err, "no workflow state")
	assert.Empty(t, f.fake.sent("IssueUpdateState"))
}

func TestIssueTaskStatus(t *testing.T) {
	tests := []struct {
		state    model.LinearWorkflowStateType
		priority int
		status   model.TaskStatus
		want     model.TaskPriority
	}{
		{model.LinearWorkflowStateBacklog, 0, model.TaskActive, model.PriorityP4},
		{model.LinearWorkflowStateStarted, 1, model.TaskActive, model.PriorityP1},
		{model.LinearWorkflowStateCompleted, 3, model.TaskDone, model.PriorityP3},
		{model.LinearWorkflowStateCanceled, 4, model.TaskDeleted, model.PriorityP4},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			issue := &model.LinearIssue{State: model.LinearWorkflowState{Type: tt.state}, Priority: tt.priority}
			assert.Equal(t, tt.status, issue.TaskStatus())
			assert.Equal(t, tt.want, issue.TaskPriority())
		})
	}
}

func TestAuthenticationErrorIsAuthError(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.respond("Notifications", map[string]any{"errors": []any{map[string]any{
		"message":    "Authentication required, not authenticated",
		"extensions": map[string]any{"code": "AUTHENTICATION_ERROR", "type": "authentication error"},
	}}})

	_, err := f.adapter.NotificationItemSources()[0].FetchItems(context.Background(), f.tx, "user-1", nil)
	assert.True(t, source.IsAuthError(err))
}

func TestFetchDisabledSources(t *testing.T) {
	config := model.DefaultConfig(model.ProviderLinear)
	config.Linear.SyncNotificationsEnabled = false
	config.Linear.SyncTasksEnabled = false
	f := newFixture(t, &config)
	ctx := context.Background()

	_, err := f.adapter.NotificationItemSources()[0].FetchItems(ctx, f.tx, "user-1", nil)
	assert.ErrorIs(t, err, source.ErrSyncDisabled)
	_, err = f.adapter.TaskItemSources()[0].FetchItems(ctx, f.tx, "user-1", nil)
	assert.ErrorIs(t, err, source.ErrSyncDisabled)
}
