package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/store"
)

// EventSyncType routes star and reaction events the way the connection
// syncs them. Thread messages always feed notifications.
func (a *Adapter) EventSyncType(config model.IntegrationConnectionConfig, event source.Event) (model.SyncType, bool) {
	e, ok := event.(*Event)
	if !ok || config.Slack == nil {
		return "", false
	}
	cfg := config.Slack
	switch e.Event.Type {
	case EventStarAdded, EventStarRemoved:
		return syncTypeOf(cfg.StarConfig.SyncType), cfg.StarConfig.Enabled
	case EventReactionAdded, EventReactionRemoved:
		if e.Event.Reaction != cfg.ReactionConfig.ReactionName {
			return "", false
		}
		return syncTypeOf(cfg.ReactionConfig.SyncType), cfg.ReactionConfig.Enabled
	case EventMessage:
		return model.SyncNotifications, cfg.MessageConfig.Enabled
	}
	return "", false
}

// FetchItemFromEvent builds the item a single event describes, for
// userID.
func (a *Adapter) FetchItemFromEvent(
	ctx context.Context,
	tx *store.Tx,
	event source.Event,
	userID string,
) (*model.ThirdPartyItem, error) {
	e, ok := event.(*Event)
	if !ok {
		return nil, fmt.Errorf("slack: unexpected event %T", event)
	}
	sess, err := a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var item *model.ThirdPartyItem
	switch e.Event.Type {
	case EventStarAdded, EventStarRemoved:
		item, err = sess.starFromEvent(ctx, e)
	case EventReactionAdded, EventReactionRemoved:
		item, err = sess.reactionFromEvent(ctx, e)
	case EventMessage:
		item, err = sess.threadFromEvent(ctx, tx, e)
	default:
		log.Debug().Str("type", e.Event.Type).Msg("ignoring Slack event")
		return nil, nil
	}
	if errors.Is(err, errUnsupportedItem) {
		log.Debug().Str("type", e.Event.Type).Msg("ignoring Slack event on unsupported item")
		return nil, nil
	}
	return item, err
}

func (s *session) starFromEvent(ctx context.Context, e *Event) (*model.ThirdPartyItem, error) {
	if e.Event.Item == nil {
		return nil, errUnsupportedItem
	}
	target := e.Event.Item
	item, err := s.starredItem(ctx, target.Type, target.Channel, target.Message, target.File)
	if err != nil {
		return nil, err
	}
	state := model.SlackStarAdded
	if e.Event.Type == EventStarRemoved {
		state = model.SlackStarRemoved
	}
	star := &model.SlackStar{State: state, CreatedAt: e.occurredAt(), Item: item}
	result := source.NewItem(star.SourceID(), star, s.token)
	return &result, nil
}

func (s *session) reactionFromEvent(ctx context.Context, e *Event) (*model.ThirdPartyItem, error) {
	target := e.Event.Item
	if target == nil || target.Type != model.SlackItemMessage || target.Channel == "" || target.TS == "" {
		return nil, errUnsupportedItem
	}

	msg, err := s.message(ctx, target.Channel, target.TS)
	if err != nil {
		return nil, err
	}
	if msg.User == "" && msg.BotID == "" {
		msg.User = e.Event.ItemUser
	}
	item, err := s.messageItem(ctx, target.Channel, msg, msg.Permalink)
	if err != nil {
		return nil, err
	}
	emojiURL, err := s.emojiURL(ctx, e.Event.Reaction)
	if err != nil {
		return nil, err
	}

	state := model.SlackReactionAdded
	if e.Event.Type == EventReactionRemoved {
		state = model.SlackReactionRemoved
	}
	reaction := &model.SlackReaction{
		Name:      e.Event.Reaction,
		EmojiURL:  emojiURL,
		State:     state,
		CreatedAt: e.occurredAt(),
		Item:      item,
	}
	result := source.NewItem(reaction.SourceID(), reaction, s.token)
	return &result, nil
}

// threadFromEvent reloads the whole thread a message belongs to. A
// thread the user left stays unsubscribed unless two way sync is on.
func (s *session) threadFromEvent(ctx context.Context, tx *store.Tx, e *Event) (*model.ThirdPartyItem, error) {
	if e.Event.Channel == "" || e.Event.TS == "" {
		return nil, errUnsupportedItem
	}
	root := e.Event.ThreadTS
	if root == "" {
		root = e.Event.TS
	}

	thread, err := s.thread(ctx, e.Event.Channel, root)
	if err != nil {
		return nil, err
	}

	sourceID := thread.SourceID()
	existing, err := tx.GetThirdPartyItemBySourceID(ctx, s.userID, s.token.Connection.ID, sourceID)
	switch {
	case err == nil:
		if stored, ok := existing.Data.(*model.SlackThread); ok && !stored.Subscribed &&
			!s.config().MessageConfig.IsTwoWaySync {
			thread.Subscribed = false
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	result := source.NewItem(sourceID, thread, s.token)
	return &result, nil
}
