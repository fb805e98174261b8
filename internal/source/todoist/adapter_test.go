package todoist_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/cache"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/todoist"
	"github.com/nhle/universal-inbox/internal/store"
	"github.com/nhle/universal-inbox/tests/testutil"
)

var added = time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)

type fakeTodoist struct {
	t          *testing.T
	mu         sync.Mutex
	items      map[string]model.TodoistItem
	projects   []todoist.Project
	tokens     []string
	commands   []todoist.Command
	reads      map[string]int
	failStatus map[string]json.RawMessage
	nextID     int
}

func newFakeTodoist(t *testing.T) *fakeTodoist {
	return &fakeTodoist{
		t: t,
		items: map[string]model.TodoistItem{
			"i1": {ID: "i1", ProjectID: "p-inbox", Content: "Buy milk", Priority: 4, AddedAt: added,
				Labels: []string{"errand"}, Due: &model.TodoistItemDue{Date: "2025-10-03", IsRecurring: true}},
			"i2": {ID: "i2", ProjectID: "p-work", Content: "Write report", Description: "Q3", Priority: 1, AddedAt: added},
		},
		projects: []todoist.Project{
			{ID: "p-inbox", Name: "Inbox", InboxProject: true},
			{ID: "p-work", Name: "Work"},
			{ID: "p-old", Name: "Archive me", IsArchived: true},
		},
		reads:      make(map[string]int),
		failStatus: make(map[string]json.RawMessage),
	}
}

func (f *fakeTodoist) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(f.t, "Bearer td-token", r.Header.Get("Authorization"))
	assert.NoError(f.t, r.ParseForm())

	var body any
	switch r.URL.Path {
	case "/items/get":
		item, ok := f.items[r.PostForm.Get("item_id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body = map[string]any{"item": item}
	case "/sync":
		if raw := r.PostForm.Get("commands"); raw != "" {
			body = f.execute(raw)
			break
		}
		body = f.read(r.PostForm.Get("sync_token"), r.PostForm.Get("resource_types"))
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	assert.NoError(f.t, json.NewEncoder(w).Encode(body))
}

func (f *fakeTodoist) read(token, resources string) todoist.SyncResponse {
	f.reads[resources]++
	switch resources {
	case `["projects"]`:
		return todoist.SyncResponse{SyncToken: "p-token", FullSync: true, Projects: f.projects}
	case `["items"]`:
		f.tokens = append(f.tokens, token)
		if token == "*" {
			return todoist.SyncResponse{
				SyncToken: "tok-1",
				FullSync:  true,
				Items:     []model.TodoistItem{f.items["i1"], f.items["i2"]},
			}
		}
		done := f.items["i2"]
		done.Checked = true
		return todoist.SyncResponse{SyncToken: "tok-2", Items: []model.TodoistItem{done}}
	}
	f.t.Errorf("unexpected resource types %s", resources)
	return todoist.SyncResponse{}
}

func (f *fakeTodoist) execute(raw string) todoist.CommandResponse {
	var commands []todoist.Command
	assert.NoError(f.t, json.Unmarshal([]byte(raw), &commands))
	resp := todoist.CommandResponse{
		SyncStatus:    make(map[string]json.RawMessage),
		TempIDMapping: make(map[string]string),
	}
	for _, cmd := range commands {
		f.commands = append(f.commands, cmd)
		if status, ok := f.failStatus[cmd.Type]; ok {
			resp.SyncStatus[cmd.UUID] = status
			continue
		}
		resp.SyncStatus[cmd.UUID] = json.RawMessage(`"ok"`)
		if cmd.TempID == "" {
			continue
		}
		f.nextID++
		id := fmt.Sprintf("new-%d", f.nextID)
		resp.TempIDMapping[cmd.TempID] = id
		switch cmd.Type {
		case "item_add":
			f.items[id] = model.TodoistItem{
				ID:        id,
				ProjectID: fmt.Sprint(cmd.Args["project_id"]),
				Content:   fmt.Sprint(cmd.Args["content"]),
				AddedAt:   added,
			}
		case "project_add":
			f.projects = append(f.projects, todoist.Project{ID: id, Name: fmt.Sprint(cmd.Args["name"])})
		}
	}
	return resp
}

func (f *fakeTodoist) sent() []todoist.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]todoist.Command(nil), f.commands...)
}

func (f *fakeTodoist) readCount(resources string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[resources]
}

type fixture struct {
	fake    *fakeTodoist
	tx      *store.Tx
	conns   source.Connections
	adapter *todoist.Adapter
}

func newFixture(t *testing.T, config *model.IntegrationConnectionConfig) *fixture {
	fake := newFakeTodoist(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s := testutil.NewTestStore(t)
	tx := testutil.NewTestTx(t, s)
	conns := testutil.NewConnections(t)
	testutil.Connect(t, tx, conns, "user-1", model.ProviderTodoist, "td-token", config)

	return &fixture{
		fake:  fake,
		tx:    tx,
		conns: conns,
		adapter: todoist.NewAdapter(conns, model.ProviderConfig{BaseURL: srv.URL}, cache.NewMemory(),
			model.CacheConfig{ProjectListTTL: time.Minute}),
	}
}

func TestFetchItemsPersistsSyncToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	items, err := f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "i1", items[0].SourceID)
	assert.Equal(t, model.KindTodoistItem, items[0].Kind())

	token, err := f.conns.FindAccessToken(ctx, f.tx, model.ProviderTodoist, "user-1")
	require.NoError(t, err)
	require.NotNil(t, token.Connection.Context)
	assert.Equal(t, &model.TodoistContext{ItemsSyncToken: "tok-1"}, token.Connection.Context.Todoist)

	items, err = f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Data.(*model.TodoistItem).Checked)
	assert.Equal(t, []string{"*", "tok-1"}, f.fake.tokens)

	token, err = f.conns.FindAccessToken(ctx, f.tx, model.ProviderTodoist, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token.Connection.Context.Todoist.ItemsSyncToken)
}

func TestFetchItemsDisabled(t *testing.T) {
	config := model.DefaultConfig(model.ProviderTodoist)
	config.Todoist.SyncTasksEnabled = false
	f := newFixture(t, &config)

	_, err := f.adapter.FetchItems(context.Background(), f.tx, "user-1", nil)
	assert.ErrorIs(t, err, source.ErrSyncDisabled)
	assert.Zero(t, f.fake.readCount(`["items"]`))
}

func TestItemIntoTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	completed := added.Add(time.Hour)

	tests := []struct {
		name        string
		item        model.TodoistItem
		wantStatus  model.TaskStatus
		wantProject string
	}{
		{
			name:        "active inbox item",
			item:        f.fake.items["i1"],
			wantStatus:  model.TaskActive,
			wantProject: "Inbox",
		},
		{
			name:        "checked",
			item:        model.TodoistItem{ID: "i2", ProjectID: "p-work", Checked: true, CompletedAt: &completed},
			wantStatus:  model.TaskDone,
			wantProject: "Work",
		},
		{
			name:        "deleted",
			item:        model.TodoistItem{ID: "i3", ProjectID: "p-work", Checked: true, IsDeleted: true},
			wantStatus:  model.TaskDeleted,
			wantProject: "Work",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := model.ThirdPartyItem{SourceID: tt.item.ID, Data: &tt.item}
			req, err := f.adapter.ThirdPartyItemIntoTask(ctx, f.tx, item, "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, req.Status)
			assert.Equal(t, tt.wantProject, req.Project)
			require.NotNil(t, req.SinkItem)
			assert.Equal(t, tt.item.ID, req.SinkItem.SourceID)
		})
	}

	i1 := f.fake.items["i1"]
	req, err := f.adapter.ThirdPartyItemIntoTask(ctx, f.tx, model.ThirdPartyItem{SourceID: "i1", Data: &i1}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", req.Title)
	assert.Equal(t, model.PriorityP1, req.Priority)
	assert.Equal(t, []string{"errand"}, req.Tags)
	assert.True(t, req.IsRecurring)
	require.NotNil(t, req.DueAt)
	assert.Equal(t, "2025-10-03", req.DueAt.String())

	// Project list comes from the cache after the first lookup.
	assert.Equal(t, 1, f.fake.readCount(`["projects"]`))
}

func TestInboxNotification(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	i1, i2 := f.fake.items["i1"], f.fake.items["i2"]
	inbox := model.ThirdPartyItem{SourceID: "i1", Data: &i1}
	work := model.ThirdPartyItem{SourceID: "i2", Data: &i2}

	ok, err := f.adapter.IsInInbox(ctx, f.tx, inbox, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.adapter.IsInInbox(ctx, f.tx, work, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, inbox, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationUnread, n.Status)
	assert.Equal(t, "Buy milk", n.Title)

	i1.Checked = true
	n, err = f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, inbox, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationDeleted, n.Status)
}

func TestTaskActionsSendCommands(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	i2 := f.fake.items["i2"]
	item := model.ThirdPartyItem{SourceID: "i2", Data: &i2}

	require.NoError(t, f.adapter.CompleteTask(ctx, f.tx, item, "user-1"))
	require.NoError(t, f.adapter.UncompleteTask(ctx, f.tx, item, "user-1"))
	require.NoError(t, f.adapter.DeleteTask(ctx, f.tx, item, "user-1"))

	title := "Write the report"
	priority := model.PriorityP2
	project := "Work"
	require.NoError(t, f.adapter.UpdateTask(ctx, f.tx, item, model.TaskPatch{
		Title:    &title,
		Priority: &priority,
		Project:  &project,
	}, "user-1"))

	sent := f.fake.sent()
	require.Len(t, sent, 5)
	var kinds []string
	for _, cmd := range sent {
		kinds = append(kinds, cmd.Type)
		assert.Equal(t, "i2", cmd.Args["id"])
	}
	assert.Equal(t, []string{"item_close", "item_uncomplete", "item_delete", "item_update", "item_move"}, kinds)
	assert.Equal(t, "Write the report", sent[3].Args["content"])
	assert.EqualValues(t, 3, sent[3].Args["priority"])
	assert.Equal(t, "p-work", sent[4].Args["project_id"])
}

func TestDeleteMissingTaskSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.failStatus["item_delete"] = json.RawMessage(`{"error_code": 22, "error": "Item not found"}`)
	f.fake.failStatus["item_close"] = json.RawMessage(`{"error_code": 22, "error": "Item not found"}`)
	item := model.ThirdPartyItem{SourceID: "gone", Data: &model.TodoistItem{ID: "gone"}}

	require.NoError(t, f.adapter.DeleteTask(context.Background(), f.tx, item, "user-1"))
	err := f.adapter.CompleteTask(context.Background(), f.tx, item, "user-1")
	assert.True(t, source.IsNotFound(err))
}

func TestCreateTaskInNewProject(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	project, err := f.adapter.GetOrCreateProject(ctx, f.tx, "Reading", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new-1", project.SourceID)

	again, err := f.adapter.GetOrCreateProject(ctx, f.tx, "Reading", "user-1")
	require.NoError(t, err)
	assert.Equal(t, project, again)
	assert.Equal(t, 1, f.fake.readCount(`["projects"]`))

	due := model.DueInDays(added, 1)
	item, err := f.adapter.CreateTask(ctx, f.tx, model.TaskCreation{
		Title:    "Read the RFC",
		Project:  project,
		DueAt:    due,
		Priority: model.PriorityP4,
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new-2", item.SourceID)
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, "new-1", item.Data.(*model.TodoistItem).ProjectID)

	sent := f.fake.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "item_add", sent[1].Type)
	assert.Equal(t, map[string]any{"date": "2025-10-02"}, sent[1].Args["due"])
	assert.EqualValues(t, 1, sent[1].Args["priority"])
}

func TestSearchProjects(t *testing.T) {
	f := newFixture(t, nil)

	found, err := f.adapter.SearchProjects(context.Background(), f.tx, "WOR", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []model.ProjectSummary{{SourceID: "p-work", Name: "Work"}}, found)

	found, err = f.adapter.SearchProjects(context.Background(), f.tx, "archive", "user-1")
	require.NoError(t, err)
	assert.Empty(t, found)
}
