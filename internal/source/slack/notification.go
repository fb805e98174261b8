package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// ThirdPartyItemIntoNotification maps stars and reactions on their
// state and threads on their read cursor.
func (a *Adapter) ThirdPartyItemIntoNotification(
	_ context.Context,
	_ *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) (*model.Notification, error) {
	switch data := item.Data.(type) {
	case *model.SlackStar:
		status := model.NotificationUnread
		if data.State == model.SlackStarRemoved {
			status = model.NotificationDeleted
		}
		return source.NewNotification(item, data.Item.Title(), status, nil, userID), nil

	case *model.SlackReaction:
		status := model.NotificationUnread
		if data.State == model.SlackReactionRemoved {
			status = model.NotificationDeleted
		}
		return source.NewNotification(item, data.Item.Title(), status, nil, userID), nil

	case *model.SlackThread:
		var lastReadAt *time.Time
		if t, ok := TSTime(data.LastRead()); ok {
			lastReadAt = &t
		}
		status := model.NotificationUnread
		switch {
		case !data.Subscribed:
			status = model.NotificationUnsubscribed
		case data.LastRead() != "" && data.LastRead() == data.LastMessageTS():
			status = model.NotificationDeleted
		}
		return source.NewNotification(item, data.Title(), status, lastReadAt, userID), nil
	}
	return nil, fmt.Errorf("slack: unexpected item kind %s", item.Kind())
}

// DeleteNotificationFromSource removes the star or the reaction, and
// marks a thread as read up to its last message.
func (a *Adapter) DeleteNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	sess, err := a.connect(ctx, tx, userID)
	if err != nil {
		return err
	}
	switch data := item.Data.(type) {
	case *model.SlackStar:
		return sess.removeStar(ctx, data.Item)
	case *model.SlackReaction:
		return sess.removeReaction(ctx, data)
	case *model.SlackThread:
		last := data.LastMessageTS()
		if last == "" {
			return nil
		}
		return source.IgnoreNotFound(sess.client.MarkRead(ctx, data.Channel.ID, last))
	}
	return fmt.Errorf("slack: unexpected item kind %s", item.Kind())
}

// UnsubscribeNotificationFromSource removes stars and reactions. Slack
// has no public API to leave a thread, so the thread is only flagged as
// unsubscribed locally.
func (a *Adapter) UnsubscribeNotificationFromSource(
	ctx context.Context,
	tx *store.Tx,
	item model.ThirdPartyItem,
	userID string,
) error {
	thread, ok := item.Data.(*model.SlackThread)
	if !ok {
		return a.DeleteNotificationFromSource(ctx, tx, item, userID)
	}
	if !thread.Subscribed {
		return nil
	}

	unsubscribed := *thread
	unsubscribed.Subscribed = false
	updated := item
	updated.Data = &unsubscribed
	updated.UpdatedAt = time.Time{}
	if _, err := tx.CreateOrUpdateThirdPartyItem(ctx, updated); err != nil {
		return fmt.Errorf("unsubscribing from Slack thread %s: %w", item.SourceID, err)
	}
	return nil
}

// SnoozeNotificationFromSource is a no-op, Slack has no snooze for saved
// items.
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

func starRequestFor(item model.SlackItem) (starRequest, error) {
	switch {
	case item.Message != nil:
		return starRequest{Channel: item.Message.Channel.ID, Timestamp: item.Message.Message.TS}, nil
	case item.File != nil:
		return starRequest{File: item.File.ID}, nil
	case item.Channel != nil:
		return starRequest{Channel: item.Channel.ID}, nil
	}
	return starRequest{}, errUnsupportedItem
}

func reactionRequestFor(r *model.SlackReaction) (reactionRequest, error) {
	if r.Item.Message == nil {
		return reactionRequest{}, errUnsupportedItem
	}
	return reactionRequest{
		Channel:   r.Item.Message.Channel.ID,
		Timestamp: r.Item.Message.Message.TS,
		Name:      r.Name,
	}, nil
}

func (s *session) removeStar(ctx context.Context, item model.SlackItem) error {
	req, err := starRequestFor(item)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(s.client.RemoveStar(ctx, req))
}

func (s *session) addStar(ctx context.Context, item model.SlackItem) error {
	req, err := starRequestFor(item)
	if err != nil {
		return err
	}
	return s.client.AddStar(ctx, req)
}

func (s *session) removeReaction(ctx context.Context, r *model.SlackReaction) error {
	req, err := reactionRequestFor(r)
	if err != nil {
		return err
	}
	return source.IgnoreNotFound(s.client.RemoveReaction(ctx, req))
}

func (s *session) addReaction(ctx context.Context, r *model.SlackReaction) error {
	req, err := reactionRequestFor(r)
	if err != nil {
		return err
	}
	return s.client.AddReaction(ctx, req)
}
