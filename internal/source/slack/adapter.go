package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/cache"
	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
	"github.com/nhle/universal-inbox/internal/store"
)

var errUnsupportedItem = errors.New("unsupported slack item type")

// Adapter syncs Slack stars, reactions and threads.
type Adapter struct {
	conns   source.Connections
	cfg     model.ProviderConfig
	ttl     model.CacheConfig
	cache   cache.Cache
	limiter *rate.Limiter
	now     func() time.Time
}

// NewAdapter creates a Slack adapter. Lookups of channels, users, bots,
// teams, emojis, messages and permalinks go through c.
func NewAdapter(
	conns source.Connections,
	cfg model.ProviderConfig,
	c cache.Cache,
	ttl model.CacheConfig,
) *Adapter {
	return &Adapter{
		conns:   conns,
		cfg:     cfg,
		ttl:     ttl,
		cache:   c,
		limiter: apiclient.NewLimiter(cfg.RequestsPerSecond),
		now:     time.Now,
	}
}

func (a *Adapter) Kind() model.IntegrationProviderKind { return model.ProviderSlack }

func (a *Adapter) NotificationItemSources() []source.ItemSource {
	return []source.ItemSource{
		&itemSource{a: a, kind: model.KindSlackStar, syncType: model.SyncNotifications},
		&itemSource{a: a, kind: model.KindSlackReaction, syncType: model.SyncNotifications},
	}
}

func (a *Adapter) TaskItemSources() []source.ItemSource {
	return []source.ItemSource{
		&itemSource{a: a, kind: model.KindSlackStar, syncType: model.SyncTasks},
		&itemSource{a: a, kind: model.KindSlackReaction, syncType: model.SyncTasks},
	}
}

// itemSource lists stars or reactions for the sync type the user's
// settings route them to.
type itemSource struct {
	a        *Adapter
	kind     model.ThirdPartyItemKind
	syncType model.SyncType
}

func (s *itemSource) ItemKind() model.ThirdPartyItemKind { return s.kind }

func (s *itemSource) IsSyncIncremental() bool { return false }

func (s *itemSource) FetchItems(
	ctx context.Context,
	tx *store.Tx,
	userID string,
	_ *time.Time,
) ([]model.ThirdPartyItem, error) {
	sess, err := s.a.connect(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	cfg := sess.config()
	sync := cfg.StarConfig
	if s.kind == model.KindSlackReaction {
		sync = cfg.ReactionConfig.SlackSyncConfig
	}
	if !sync.Enabled || syncTypeOf(sync.SyncType) != s.syncType {
		return nil, source.ErrSyncDisabled
	}

	var items []model.ThirdPartyItem
	if s.kind == model.KindSlackStar {
		items, err = sess.fetchStars(ctx)
	} else {
		items, err = sess.fetchReactions(ctx, cfg.ReactionConfig.ReactionName)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("user_id", userID).
		Str("kind", string(s.kind)).
		Int("count", len(items)).
		Msg("fetched Slack items")
	return items, nil
}

func syncTypeOf(t model.SlackSyncType) model.SyncType {
	if t == model.SlackSyncAsTasks {
		return model.SyncTasks
	}
	return model.SyncNotifications
}

// session is a Slack client bound to one user's connection.
type session struct {
	a              *Adapter
	client         *Client
	token          *source.AccessToken
	userID         string
	teamID         string
	providerUserID string
}

func (a *Adapter) connect(ctx context.Context, tx *store.Tx, userID string) (*session, error) {
	token, err := source.RequireAccessToken(ctx, a.conns, tx, model.ProviderSlack, userID)
	if err != nil {
		return nil, err
	}
	api := apiclient.New(apiclient.Options{
		Provider: model.ProviderSlack,
		BaseURL:  a.cfg.BaseURL,
		Token:    token.Token,
		Limiter:  a.limiter,
	})
	sess := &session{a: a, client: NewClient(api), token: token, userID: userID}

	conn := token.Connection
	if conn.Context != nil && conn.Context.Slack != nil {
		sess.teamID = conn.Context.Slack.TeamID
		sess.providerUserID = conn.Context.Slack.UserID
	}
	if sess.providerUserID == "" && conn.ProviderUserID != nil {
		sess.providerUserID = *conn.ProviderUserID
	}
	if sess.teamID != "" && sess.providerUserID != "" {
		return sess, nil
	}

	memberID, teamID, err := sess.client.AuthTest(ctx)
	if err != nil {
		return nil, err
	}
	sess.teamID, sess.providerUserID = teamID, memberID

	updated := model.IntegrationConnectionContext{}
	if conn.Context != nil {
		updated = *conn.Context
	}
	updated.Slack = &model.SlackContext{TeamID: teamID, UserID: memberID}
	if err := a.conns.UpdateContext(ctx, tx, conn.ID, &updated); err != nil {
		return nil, fmt.Errorf("saving Slack context of connection %s: %w", conn.ID, err)
	}
	return sess, nil
}

func (s *session) config() model.SlackConfig {
	if cfg := s.token.Connection.Config.Slack; cfg != nil {
		return *cfg
	}
	return *model.DefaultConfig(model.ProviderSlack).Slack
}

func (s *session) pageSize() int {
	if s.a.cfg.PageSize > 0 {
		return s.a.cfg.PageSize
	}
	return 100
}

func (s *session) fetchStars(ctx context.Context) ([]model.ThirdPartyItem, error) {
	var items []model.ThirdPartyItem
	cursor := ""
	for {
		page, next, err := s.client.ListStars(ctx, cursor, s.pageSize())
		if err != nil {
			return nil, fmt.Errorf("listing Slack stars: %w", err)
		}
		for _, starred := range page {
			item, err := s.starredItem(ctx, starred.Type, starred.ChannelID(), starred.Message, starred.File)
			if errors.Is(err, errUnsupportedItem) {
				log.Debug().Str("type", starred.Type).Msg("skipping Slack star")
				continue
			}
			if err != nil {
				return nil, err
			}
			createdAt := s.a.now().UTC()
			if starred.DateCreated > 0 {
				createdAt = time.Unix(starred.DateCreated, 0).UTC()
			}
			star := &model.SlackStar{State: model.SlackStarAdded, CreatedAt: createdAt, Item: item}
			items = append(items, source.NewItem(star.SourceID(), star, s.token))
		}
		if next == "" {
			return items, nil
		}
		cursor = next
	}
}

func (s *session) fetchReactions(ctx context.Context, name string) ([]model.ThirdPartyItem, error) {
	emojiURL, err := s.emojiURL(ctx, name)
	if err != nil {
		return nil, err
	}

	var items []model.ThirdPartyItem
	cursor := ""
	for {
		page, next, err := s.client.ListReactions(ctx, s.providerUserID, cursor, s.pageSize())
		if err != nil {
			return nil, fmt.Errorf("listing Slack reactions: %w", err)
		}
		for _, reacted := range page {
			if reacted.Type != model.SlackItemMessage || reacted.Message == nil || reacted.Channel == "" {
				continue
			}
			if !hasReacted(*reacted.Message, name, s.providerUserID) {
				continue
			}
			item, err := s.messageItem(ctx, reacted.Channel, *reacted.Message, "")
			if err != nil {
				return nil, err
			}
			reaction := &model.SlackReaction{
				Name:      name,
				EmojiURL:  emojiURL,
				State:     model.SlackReactionAdded,
				CreatedAt: s.a.now().UTC(),
				Item:      item,
			}
			items = append(items, source.NewItem(reaction.SourceID(), reaction, s.token))
		}
		if next == "" {
			return items, nil
		}
		cursor = next
	}
}

func hasReacted(m Message, name, user string) bool {
	for _, r := range m.Reactions {
		if r.Name != name {
			continue
		}
		for _, u := range r.Users {
			if u == user {
				return true
			}
		}
	}
	return false
}

// starredItem resolves what a star points to.
func (s *session) starredItem(
	ctx context.Context,
	itemType string,
	channelID string,
	message *Message,
	file *File,
) (model.SlackItem, error) {
	switch itemType {
	case model.SlackItemMessage:
		if message == nil || channelID == "" {
			return model.SlackItem{}, errUnsupportedItem
		}
		return s.messageItem(ctx, channelID, *message, message.Permalink)
	case model.SlackItemFile:
		if file == nil {
			return model.SlackItem{}, errUnsupportedItem
		}
		return s.fileItem(ctx, channelID, *file)
	case model.SlackItemChannel, model.SlackItemIM, model.SlackItemGroup:
		channel, err := s.channel(ctx, channelID)
		if err != nil {
			return model.SlackItem{}, err
		}
		team, err := s.team(ctx)
		if err != nil {
			return model.SlackItem{}, err
		}
		return model.SlackItem{Type: itemType, Channel: &channel, Team: &team}, nil
	}
	return model.SlackItem{}, errUnsupportedItem
}

func (s *session) messageItem(ctx context.Context, channelID string, msg Message, permalink string) (model.SlackItem, error) {
	if permalink == "" {
		var err error
		if permalink, err = s.permalink(ctx, channelID, msg.TS); err != nil {
			return model.SlackItem{}, err
		}
	}
	sender, err := s.sender(ctx, msg.User, msg.BotID)
	if err != nil {
		return model.SlackItem{}, err
	}
	channel, err := s.channel(ctx, channelID)
	if err != nil {
		return model.SlackItem{}, err
	}
	team, err := s.team(ctx)
	if err != nil {
		return model.SlackItem{}, err
	}
	return model.SlackItem{
		Type: model.SlackItemMessage,
		Message: &model.SlackMessageDetails{
			URL:     permalink,
			Message: messageToModel(msg),
			Channel: channel,
			Sender:  sender,
			Team:    team,
		},
	}, nil
}

func (s *session) fileItem(ctx context.Context, channelID string, file File) (model.SlackItem, error) {
	details := &model.SlackFileDetails{ID: file.ID, Title: file.Title, URL: file.Permalink}
	if details.Title == "" {
		details.Title = file.Name
	}
	if file.User != "" {
		sender, err := s.sender(ctx, file.User, "")
		if err != nil {
			return model.SlackItem{}, err
		}
		details.Sender = &sender
	}
	if channelID != "" {
		channel, err := s.channel(ctx, channelID)
		if err != nil {
			return model.SlackItem{}, err
		}
		details.Channel = channel
	}
	team, err := s.team(ctx)
	if err != nil {
		return model.SlackItem{}, err
	}
	details.Team = team
	return model.SlackItem{Type: model.SlackItemFile, File: details}, nil
}

func (s *session) thread(ctx context.Context, channelID, rootTS string) (*model.SlackThread, error) {
	replies, err := s.client.FetchReplies(ctx, channelID, rootTS, s.pageSize())
	if err != nil {
		return nil, fmt.Errorf("fetching Slack thread %s/%s: %w", channelID, rootTS, err)
	}
	if len(replies) == 0 {
		return nil, &source.NotFoundError{Provider: model.ProviderSlack, Resource: "thread " + channelID + "/" + rootTS}
	}

	messages := make([]model.SlackThreadMessage, 0, len(replies))
	for _, m := range replies {
		sender, err := s.sender(ctx, m.User, m.BotID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, model.SlackThreadMessage{
			TS:         m.TS,
			ThreadTS:   m.ThreadTS,
			Text:       m.Text,
			Sender:     sender,
			LastRead:   m.LastRead,
			ReplyCount: m.ReplyCount,
		})
	}

	url, err := s.permalink(ctx, channelID, rootTS)
	if err != nil {
		return nil, err
	}
	channel, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	team, err := s.team(ctx)
	if err != nil {
		return nil, err
	}
	return &model.SlackThread{
		URL:        url,
		Messages:   messages,
		Channel:    channel,
		Team:       team,
		Subscribed: true,
	}, nil
}

// Cached lookups. Members and messages are private to the user, the
// rest is shared by the workspace.

func (s *session) channel(ctx context.Context, id string) (model.SlackChannelInfo, error) {
	key := cache.Key("slack", s.teamID, "channel", id)
	return cache.Fetch(s.a.cache, key, s.a.ttl.SlackEntityTTL, func() (model.SlackChannelInfo, error) {
		c, err := s.client.FetchChannel(ctx, id)
		if err != nil {
			return model.SlackChannelInfo{}, fmt.Errorf("fetching Slack channel %s: %w", id, err)
		}
		return channelToModel(c), nil
	})
}

func (s *session) sender(ctx context.Context, user, bot string) (model.SlackSender, error) {
	switch {
	case user != "":
		key := cache.UserKey(s.userID, "slack", "user", user)
		return cache.Fetch(s.a.cache, key, s.a.ttl.SlackEntityTTL, func() (model.SlackSender, error) {
			u, err := s.client.FetchUser(ctx, user)
			if err != nil {
				return model.SlackSender{}, fmt.Errorf("fetching Slack user %s: %w", user, err)
			}
			return userToSender(u), nil
		})
	case bot != "":
		key := cache.Key("slack", s.teamID, "bot", bot)
		return cache.Fetch(s.a.cache, key, s.a.ttl.SlackEntityTTL, func() (model.SlackSender, error) {
			b, err := s.client.FetchBot(ctx, bot)
			if err != nil {
				return model.SlackSender{}, fmt.Errorf("fetching Slack bot %s: %w", bot, err)
			}
			return botToSender(b), nil
		})
	}
	return model.SlackSender{}, errors.New("slack message has neither user nor bot sender")
}

func (s *session) team(ctx context.Context) (model.SlackTeamInfo, error) {
	key := cache.Key("slack", "team", s.teamID)
	return cache.Fetch(s.a.cache, key, s.a.ttl.SlackEntityTTL, func() (model.SlackTeamInfo, error) {
		t, err := s.client.FetchTeam(ctx, s.teamID)
		if err != nil {
			return model.SlackTeamInfo{}, fmt.Errorf("fetching Slack team %s: %w", s.teamID, err)
		}
		return teamToModel(t), nil
	})
}

func (s *session) message(ctx context.Context, channelID, ts string) (Message, error) {
	key := cache.UserKey(s.userID, "slack", "message", channelID, ts)
	return cache.Fetch(s.a.cache, key, s.a.ttl.SlackMessageTTL, func() (Message, error) {
		m, err := s.client.FetchMessage(ctx, channelID, ts)
		if err != nil {
			return Message{}, fmt.Errorf("fetching Slack message %s/%s: %w", channelID, ts, err)
		}
		return m, nil
	})
}

func (s *session) permalink(ctx context.Context, channelID, ts string) (string, error) {
	key := cache.Key("slack", s.teamID, "permalink", channelID, ts)
	return cache.Fetch(s.a.cache, key, s.a.ttl.SlackPermalinkTTL, func() (string, error) {
		url, err := s.client.GetPermalink(ctx, channelID, ts)
		if err != nil {
			return "", fmt.Errorf("fetching Slack permalink %s/%s: %w", channelID, ts, err)
		}
		return url, nil
	})
}

// emojiURL returns the image of a custom emoji, following aliases. Built
// in emojis have none.
func (s *session) emojiURL(ctx context.Context, name string) (string, error) {
	key := cache.Key("slack", s.teamID, "emoji")
	emojis, err := cache.Fetch(s.a.cache, key, s.a.ttl.SlackEmojiTTL, func() (map[string]string, error) {
		e, err := s.client.FetchEmojis(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching Slack emojis: %w", err)
		}
		return e, nil
	})
	if err != nil {
		return "", err
	}
	url := emojis[name]
	if alias, ok := strings.CutPrefix(url, "alias:"); ok {
		url = emojis[alias]
	}
	return url, nil
}
