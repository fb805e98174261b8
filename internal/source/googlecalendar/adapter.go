package googlecalendar

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

// Adapter turns Google Mail invitations into calendar event
// notifications. It has no listing of its own.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	limiter *rate.Limiter
}

// NewAdapter creates a Google Calendar adapter.
func NewAdapter(conns source.Connections, cfg model.ProviderConfig) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderGoogleCalendar }

func (a *Adapter) DerivesFrom() model.ThirdPartyItemKind { return model.KindGoogleMailThread }

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*Client, *source.AccessToken, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderGoogleCalendar, userID)
	if err != nil {
		return nil, nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderGoogleCalendar,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	return NewClient(api), token, nil
}

// DeriveItem looks up the event a mail thread invites the user to. It
// returns nil for threads without invitation, and an *source.AuthError
// when the user has no calendar connection.
func (a *Adapter) DeriveItem(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.ThirdPartyItem, error) {
	thread, ok := item.Data.(*model.GoogleMailThread)
	if !ok {
		return nil, nil
	}
	uid, ok := InvitationUID(thread)
	if !ok {
		return nil, nil
	}

	client, token, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if cfg := token.Connection.Config.GoogleCalendar; cfg == nil || !cfg.SyncEventDetailsEnabled {
		return nil, nil
	}

	event, err := client.FindEventByICalUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if event == nil {
		log.Warn().
			Str("user_id", userID).
			Str("ical_uid", uid).
			Msg("invitation has no matching Google Calendar event")
		return nil, nil
	}

	derived := source.NewItem(event.ID, event, token)
	derived.SourceItem = &item
	return &derived, nil
}

// ThirdPartyItemIntoNotification marks answered invitations as read.
func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	event, ok := item.Data.(*model.GoogleCalendarEvent)
	if !ok {
		return nil, fmt.Errorf("google calendar: unexpected item kind %s", item.Kind())
	}

	status := model.NotificationUnread
	switch event.SelfResponse() {
	case model.CalendarResponseAccepted, model.CalendarResponseDeclined:
		status = model.NotificationRead
	}
	return source.NewNotification(item, event.Summary, status, nil, userID), nil
}

// DeleteNotificationFromSource is a no-op, the event stays in the
// calendar.
func (a *Adapter) DeleteNotificationFromSource(context.Context, *store.Tx, model.ThirdPartyItem, string) error {
	return nil
}

// UnsubscribeNotificationFromSource removes the event from the user's
// calendar.
func (a *Adapter) UnsubscribeNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	client, _, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(client.DeleteEvent(ctx, item.SourceID))
}

// SnoozeNotificationFromSource is a no-op, events cannot be snoozed.
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
