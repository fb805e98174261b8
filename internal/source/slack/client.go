package slack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

// APIError is an ok=false answer of the Web API.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Code)
}

var authErrorCodes = map[string]bool{
	"not_authed":       true,
	"invalid_auth":     true,
	"account_inactive": true,
	"token_revoked":    true,
	"token_expired":    true,
}

var notFoundCodes = map[string]bool{
	"not_starred":       true,
	"no_reaction":       true,
	"message_not_found": true,
	"channel_not_found": true,
	"thread_not_found":  true,
	"file_not_found":    true,
	"user_not_found":    true,
	"bot_not_found":     true,
	"team_not_found":    true,
}

// Client is a thin client for the Slack Web API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func checkResponse(method string, r envelope) error {
	if r.ok() {
		return nil
	}
	code := r.errCode()
	switch {
	case authErrorCodes[code]:
		return &source.AuthError{Provider: model.ProviderSlack, Message: method + ": " + code}
	case notFoundCodes[code]:
		return &source.NotFoundError{Provider: model.ProviderSlack, Resource: method + " (" + code + ")"}
	}
	return &APIError{Method: method, Code: code}
}

func (c *Client) get(ctx context.Context, method string, query url.Values, result envelope) error {
	if err := c.api.Get(ctx, "/"+method, query, result); err != nil {
		return fmt.Errorf("calling slack %s: %w", method, err)
	}
	return checkResponse(method, result)
}

func (c *Client) post(ctx context.Context, method string, body any) error {
	var result response
	if err := c.api.Post(ctx, "/"+method, body, &result); err != nil {
		return fmt.Errorf("calling slack %s: %w", method, err)
	}
	return checkResponse(method, result)
}

// AuthTest identifies the token's user and workspace.
func (c *Client) AuthTest(ctx context.Context) (userID, teamID string, err error) {
	var resp authTestResponse
	if err := c.get(ctx, "auth.test", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.UserID, resp.TeamID, nil
}

// ListStars returns one page of the user's saved items.
func (c *Client) ListStars(ctx context.Context, cursor string, limit int) ([]StarredItem, string, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var resp starsListResponse
	if err := c.get(ctx, "stars.list", query, &resp); err != nil {
		return nil, "", err
	}
	return resp.Items, resp.ResponseMetadata.NextCursor, nil
}

// ListReactions returns one page of the items the user reacted to.
func (c *Client) ListReactions(ctx context.Context, user, cursor string, limit int) ([]ReactedItem, string, error) {
	query := url.Values{
		"user":  {user},
		"full":  {"true"},
		"limit": {strconv.Itoa(limit)},
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var resp reactionsListResponse
	if err := c.get(ctx, "reactions.list", query, &resp); err != nil {
		return nil, "", err
	}
	return resp.Items, resp.ResponseMetadata.NextCursor, nil
}

func (c *Client) FetchChannel(ctx context.Context, channel string) (Channel, error) {
	var resp channelResponse
	if err := c.get(ctx, "conversations.info", url.Values{"channel": {channel}}, &resp); err != nil {
		return Channel{}, err
	}
	return resp.Channel, nil
}

func (c *Client) FetchUser(ctx context.Context, user string) (User, error) {
	var resp userResponse
	if err := c.get(ctx, "users.info", url.Values{"user": {user}}, &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

func (c *Client) FetchBot(ctx context.Context, bot string) (Bot, error) {
	var resp botResponse
	if err := c.get(ctx, "bots.info", url.Values{"bot": {bot}}, &resp); err != nil {
		return Bot{}, err
	}
	return resp.Bot, nil
}

func (c *Client) FetchTeam(ctx context.Context, team string) (Team, error) {
	var resp teamResponse
	if err := c.get(ctx, "team.info", url.Values{"team": {team}}, &resp); err != nil {
		return Team{}, err
	}
	return resp.Team, nil
}

// FetchEmojis returns the custom emojis of the workspace by name.
func (c *Client) FetchEmojis(ctx context.Context) (map[string]string, error) {
	var resp emojiResponse
	if err := c.get(ctx, "emoji.list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Emoji, nil
}

func (c *Client) GetPermalink(ctx context.Context, channel, ts string) (string, error) {
	var resp permalinkResponse
	query := url.Values{"channel": {channel}, "message_ts": {ts}}
	if err := c.get(ctx, "chat.getPermalink", query, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}

// FetchMessage returns a single message of a conversation.
func (c *Client) FetchMessage(ctx context.Context, channel, ts string) (Message, error) {
	var resp historyResponse
	query := url.Values{
		"channel":   {channel},
		"latest":    {ts},
		"inclusive": {"true"},
		"limit":     {"1"},
	}
	if err := c.get(ctx, "conversations.history", query, &resp); err != nil {
		return Message{}, err
	}
	if len(resp.Messages) == 0 {
		return Message{}, &source.NotFoundError{Provider: model.ProviderSlack, Resource: "message " + channel + "/" + ts}
	}
	return resp.Messages[0], nil
}

// FetchReplies returns every message of a thread, parent first.
func (c *Client) FetchReplies(ctx context.Context, channel, threadTS string, limit int) ([]Message, error) {
	var messages []Message
	cursor := ""
	for {
		query := url.Values{
			"channel": {channel},
			"ts":      {threadTS},
			"limit":   {strconv.Itoa(limit)},
		}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var resp historyResponse
		if err := c.get(ctx, "conversations.replies", query, &resp); err != nil {
			return nil, err
		}
		messages = append(messages, resp.Messages...)
		cursor = resp.ResponseMetadata.NextCursor
		if !resp.HasMore || cursor == "" {
			return messages, nil
		}
	}
}

// AddStar saves an item. Saving it twice is not an error.
func (c *Client) AddStar(ctx context.Context, req starRequest) error {
	err := c.post(ctx, "stars.add", req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_starred" {
		return nil
	}
	return err
}

func (c *Client) RemoveStar(ctx context.Context, req starRequest) error {
	return c.post(ctx, "stars.remove", req)
}

// AddReaction puts an emoji on a message. Reacting twice is not an
// error.
func (c *Client) AddReaction(ctx context.Context, req reactionRequest) error {
	err := c.post(ctx, "reactions.add", req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "already_reacted" {
		return nil
	}
	return err
}

func (c *Client) RemoveReaction(ctx context.Context, req reactionRequest) error {
	return c.post(ctx, "reactions.remove", req)
}

// MarkRead moves the read cursor of a conversation to ts.
func (c *Client) MarkRead(ctx context.Context, channel, ts string) error {
	return c.post(ctx, "conversations.mark", markRequest{Channel: channel, TS: ts})
}
