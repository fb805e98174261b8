package googlemail_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/googlemail"
	"github.com/nhle/universal-inbox/internal/store"
	"github.com/nhle/universal-inbox/tests/testutil"
)

const userEmail = "jane@example.com"

func message(id string, date time.Time, from, to string, labels ...string) model.GoogleMailMessage {
	return model.GoogleMailMessage{
		ID:       id,
		ThreadID: "thread",
		LabelIDs: labels,
		Payload: model.GoogleMailMessagePayload{
			MimeType: "text/plain",
			Headers: []model.GoogleMailHeader{
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "From", Value: from},
				{Name: "To", Value: to},
			},
		},
		InternalDate: model.MillisTime{Time: date},
	}
}

var (
	day1 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
)

func thread(messages ...model.GoogleMailMessage) *model.GoogleMailThread {
	return &model.GoogleMailThread{ID: "thread", UserEmailAddress: userEmail, Messages: messages}
}

func TestThreadStatus(t *testing.T) {
	const (
		inbox   = model.GoogleMailInboxLabel
		unread  = model.GoogleMailUnreadLabel
		starred = model.GoogleMailStarredLabel
	)
	alice := "Alice <alice@example.com>"
	jane := "Jane <Jane@Example.com>"
	team := "team@example.com"

	tests := []struct {
		name     string
		thread   *model.GoogleMailThread
		previous model.NotificationStatus
		want     model.NotificationStatus
	}{
		{
			name:   "unread in inbox",
			thread: thread(message("1", day1, alice, team, inbox, starred, unread)),
			want:   model.NotificationUnread,
		},
		{
			name:   "read in inbox",
			thread: thread(message("1", day1, alice, team, inbox, starred)),
			want:   model.NotificationRead,
		},
		{
			name:   "archived",
			thread: thread(message("1", day1, alice, team, starred, unread)),
			want:   model.NotificationUnsubscribed,
		},
		{
			name: "user replied last",
			thread: thread(
				message("1", day1, alice, jane, inbox, starred, unread),
				message("2", day2, jane, alice, inbox, starred),
			),
			want: model.NotificationDeleted,
		},
		{
			name:     "unsubscribed without new message",
			thread:   thread(message("1", day1, alice, team, inbox, starred)),
			previous: model.NotificationUnsubscribed,
			want:     model.NotificationUnsubscribed,
		},
		{
			name: "unsubscribed with unaddressed new message",
			thread: thread(
				message("1", day1, alice, jane),
				message("2", day2, alice, team, inbox, starred, unread),
			),
			previous: model.NotificationUnsubscribed,
			want:     model.NotificationUnsubscribed,
		},
		{
			name: "unsubscribed with addressed new message",
			thread: thread(
				message("1", day1, alice, team),
				message("2", day2, alice, "Bob <bob@example.com>, "+jane, inbox, starred, unread),
			),
			previous: model.NotificationUnsubscribed,
			want:     model.NotificationUnread,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, googlemail.ThreadStatus(tt.thread, tt.previous))
		})
	}
}

type fakeGmail struct {
	t       *testing.T
	mu      sync.Mutex
	threads map[string]googlemail.Thread
	modify  map[string][]string
	calls   []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	write := func(v any) {
		assert.NoError(f.t, json.NewEncoder(w).Encode(v))
	}
	switch {
	case r.URL.Path == "/users/me/profile":
		write(googlemail.Profile{EmailAddress: userEmail})
	case r.URL.Path == "/users/me/labels":
		write(map[string]any{"labels": []googlemail.Label{
			{ID: "INBOX", Name: "INBOX", Type: "system"},
			{ID: "STARRED", Name: "STARRED", Type: "system"},
		}})
	case r.URL.Path == "/users/me/threads":
		assert.Equal(f.t, "STARRED", r.URL.Query().Get("labelIds"))
		var summaries []googlemail.ThreadSummary
		for _, id := range []string{"123", "456"} {
			summaries = append(summaries, googlemail.ThreadSummary{ID: id})
		}
		write(map[string]any{"threads": summaries, "resultSizeEstimate": len(summaries)})
	case r.Method == http.MethodPost:
		var body struct {
			RemoveLabelIDs []string `json:"removeLabelIds"`
		}
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(f.t, json.Unmarshal(raw, &body))
		f.modify[r.URL.Path] = body.RemoveLabelIDs
		write(map[string]any{})
	default:
		id := r.URL.Path[len("/users/me/threads/"):]
		t, ok := f.threads[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		write(t)
	}
}

func (f *fakeGmail) removedLabels(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modify[path]
}

func (f *fakeGmail) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeGmail) readdress(threadID string, index int, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	headers := f.threads[threadID].Messages[index].Payload.Headers
	for i := range headers {
		if headers[i].Name == "To" {
			headers[i].Value = to
		}
	}
}

func newFakeGmail(t *testing.T) *fakeGmail {
	alice := "Alice <alice@example.com>"
	return &fakeGmail{
		t:      t,
		modify: make(map[string][]string),
		threads: map[string]googlemail.Thread{
			"123": {ID: "123", HistoryID: "1", Messages: []model.GoogleMailMessage{
				message("m1", day1, alice, userEmail, "INBOX", "STARRED"),
				message("m2", day2, alice, userEmail, "INBOX", "STARRED", "UNREAD"),
			}},
			"456": {ID: "456", HistoryID: "2", Messages: []model.GoogleMailMessage{
				message("m3", day1, alice, "team@example.com", "INBOX", "STARRED"),
			}},
		},
	}
}

type fixture struct {
	fake    *fakeGmail
	tx      *store.Tx
	conns   source.Connections
	adapter *googlemail.Adapter
}

func newFixture(t *testing.T) *fixture {
	fake := newFakeGmail(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s := testutil.NewTestStore(t)
	tx := testutil.NewTestTx(t, s)
	conns := testutil.NewConnections(t)
	testutil.Connect(t, tx, conns, "user-1", model.ProviderGoogleMail, "gm-token", nil)

	return &fixture{
		fake:    fake,
		tx:      tx,
		conns:   conns,
		adapter: googlemail.NewAdapter(conns, model.ProviderConfig{BaseURL: srv.URL, PageSize: 10}),
	}
}

func TestFetchItemsDerivesNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "123", first.SourceID)
	assert.Equal(t, "https://mail.google.com/mail/u/"+userEmail+"/#inbox/123", first.HTMLURL())

	n, err := f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, first, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationUnread, n.Status)
	assert.Equal(t, "Quarterly report", n.Title)
	require.NotNil(t, n.LastReadAt)
	assert.True(t, day1.Equal(*n.LastReadAt))
	assert.True(t, day2.Equal(n.UpdatedAt))

	n, err = f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, items[1], "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationRead, n.Status)

	token, err := f.conns.FindAccessToken(ctx, f.tx, model.ProviderGoogleMail, "user-1")
	require.NoError(t, err)
	require.NotNil(t, token.Connection.Context)
	require.NotNil(t, token.Connection.Context.GoogleMail)
	assert.Equal(t, userEmail, token.Connection.Context.GoogleMail.UserEmailAddress)
	assert.Len(t, token.Connection.Context.GoogleMail.Labels, 2)

	// The profile is only looked up on the first sync.
	_, err = f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.fake.count("GET /users/me/profile"))
}

func TestFetchItemsArchivesUnsubscribedThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	stored, err := f.tx.CreateOrUpdateThirdPartyItem(ctx, items[0])
	require.NoError(t, err)
	_, err = f.tx.CreateOrUpdateNotification(ctx, model.Notification{
		Title:      "Quarterly report",
		Status:     model.NotificationUnsubscribed,
		UserID:     "user-1",
		Kind:       model.ProviderGoogleMail,
		SourceItem: stored.Value(),
	}, false)
	require.NoError(t, err)

	// The new unread message of 123 is addressed to the user: reactivated.
	items, err = f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	assert.Nil(t, f.fake.removedLabels("/users/me/threads/123/modify"))
	n, err := f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, items[0], "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationUnread, n.Status)

	// Once addressed to someone else, it is archived again.
	f.fake.readdress("123", 1, "team@example.com")
	items, err = f.adapter.FetchItems(ctx, f.tx, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "STARRED"}, f.fake.removedLabels("/users/me/threads/123/modify"))

	archived := items[0].Data.(*model.GoogleMailThread)
	assert.False(t, archived.IsTaggedWith(model.GoogleMailInboxLabel))
	assert.False(t, archived.IsTaggedWith(model.GoogleMailStarredLabel))
	assert.True(t, archived.IsTaggedWith(model.GoogleMailUnreadLabel))

	n, err = f.adapter.ThirdPartyItemIntoNotification(ctx, f.tx, items[0], "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationUnsubscribed, n.Status)
}

func TestDeleteArchivesThread(t *testing.T) {
	f := newFixture(t)
	item := model.ThirdPartyItem{SourceID: "456", Data: thread()}

	require.NoError(t, f.adapter.DeleteNotificationFromSource(context.Background(), f.tx, item, "user-1"))
	assert.Equal(t, []string{"INBOX", "STARRED"}, f.fake.removedLabels("/users/me/threads/456/modify"))
}

func TestFetchItemsDisabled(t *testing.T) {
	fake := newFakeGmail(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := testutil.NewTestStore(t)
	tx := testutil.NewTestTx(t, s)
	conns := testutil.NewConnections(t)
	config := model.DefaultConfig(model.ProviderGoogleMail)
	config.GoogleMail.SyncNotificationsEnabled = false
	testutil.Connect(t, tx, conns, "user-1", model.ProviderGoogleMail, "gm-token", &config)

	_, err := googlemail.NewAdapter(conns, model.ProviderConfig{BaseURL: srv.URL}).FetchItems(context.Background(), tx, "user-1", nil)
	assert.ErrorIs(t, err, source.ErrSyncDisabled)
	assert.Zero(t, fake.count("GET /users/me/labels"))
}
