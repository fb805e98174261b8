package slack

import (
	"strconv"
	"strings"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
)

// response is the envelope of every Web API answer. Failures come back
// with HTTP 200 and ok set to false.
type response struct {
	OK               bool             `json:"ok"`
	Error            string           `json:"error,omitempty"`
	ResponseMetadata responseMetadata `json:"response_metadata"`
}

type responseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

func (r response) ok() bool        { return r.OK }
func (r response) errCode() string { return r.Error }

type envelope interface {
	ok() bool
	errCode() string
}

// Message is a message as returned by history, stars and reactions
// listings.
type Message struct {
	Type       string     `json:"type,omitempty"`
	TS         string     `json:"ts"`
	ThreadTS   string     `json:"thread_ts,omitempty"`
	Text       string     `json:"text"`
	User       string     `json:"user,omitempty"`
	BotID      string     `json:"bot_id,omitempty"`
	Permalink  string     `json:"permalink,omitempty"`
	LastRead   string     `json:"last_read,omitempty"`
	ReplyCount int        `json:"reply_count,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

// Reaction is one emoji put on a message and who put it.
type Reaction struct {
	Name  string   `json:"name"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// File is a shared file.
type File struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Name      string `json:"name,omitempty"`
	User      string `json:"user,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}

// StarredItem is one entry of stars.list.
type StarredItem struct {
	Type        string   `json:"type"`
	Channel     string   `json:"channel,omitempty"`
	Group       string   `json:"group,omitempty"`
	Message     *Message `json:"message,omitempty"`
	File        *File    `json:"file,omitempty"`
	DateCreated int64    `json:"date_create,omitempty"`
}

// ChannelID returns the conversation the starred item lives in.
func (s StarredItem) ChannelID() string {
	if s.Group != "" {
		return s.Group
	}
	return s.Channel
}

type starsListResponse struct {
	response
	Items []StarredItem `json:"items"`
}

// ReactedItem is one entry of reactions.list.
type ReactedItem struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Message *Message `json:"message,omitempty"`
	File    *File    `json:"file,omitempty"`
}

type reactionsListResponse struct {
	response
	Items []ReactedItem `json:"items"`
}

// Channel is a conversation as returned by conversations.info.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	IsChannel bool   `json:"is_channel,omitempty"`
	IsGroup   bool   `json:"is_group,omitempty"`
	IsIM      bool   `json:"is_im,omitempty"`
	IsMPIM    bool   `json:"is_mpim,omitempty"`
}

type channelResponse struct {
	response
	Channel Channel `json:"channel"`
}

// User is a workspace member.
type User struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Profile UserProfile `json:"profile"`
}

type UserProfile struct {
	RealName string `json:"real_name,omitempty"`
	Image72  string `json:"image_72,omitempty"`
}

type userResponse struct {
	response
	User User `json:"user"`
}

// Bot is an app posting messages.
type Bot struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Icons BotIcons `json:"icons"`
}

type BotIcons struct {
	Image72 string `json:"image_72,omitempty"`
}

type botResponse struct {
	response
	Bot Bot `json:"bot"`
}

// Team is a workspace.
type Team struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Domain string   `json:"domain"`
	Icon   TeamIcon `json:"icon"`
}

type TeamIcon struct {
	Image68 string `json:"image_68,omitempty"`
}

type teamResponse struct {
	response
	Team Team `json:"team"`
}

type permalinkResponse struct {
	response
	Permalink string `json:"permalink"`
}

type historyResponse struct {
	response
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

type emojiResponse struct {
	response
	Emoji map[string]string `json:"emoji"`
}

type authTestResponse struct {
	response
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	Team   string `json:"team"`
}

type starRequest struct {
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	File      string `json:"file,omitempty"`
}

type reactionRequest struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
}

type markRequest struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func channelToModel(c Channel) model.SlackChannelInfo {
	return model.SlackChannelInfo{
		ID:        c.ID,
		Name:      c.Name,
		IsChannel: c.IsChannel,
		IsGroup:   c.IsGroup,
		IsIM:      c.IsIM,
		IsMPIM:    c.IsMPIM,
	}
}

func userToSender(u User) model.SlackSender {
	return model.SlackSender{
		ID:        u.ID,
		Name:      u.Name,
		RealName:  u.Profile.RealName,
		AvatarURL: u.Profile.Image72,
	}
}

func botToSender(b Bot) model.SlackSender {
	return model.SlackSender{
		ID:        b.ID,
		Name:      b.Name,
		IsBot:     true,
		AvatarURL: b.Icons.Image72,
	}
}

func teamToModel(t Team) model.SlackTeamInfo {
	return model.SlackTeamInfo{
		ID:     t.ID,
		Name:   t.Name,
		Domain: t.Domain,
		Icon:   t.Icon.Image68,
	}
}

func messageToModel(m Message) model.SlackMessage {
	return model.SlackMessage{
		TS:       m.TS,
		ThreadTS: m.ThreadTS,
		Text:     m.Text,
		User:     m.User,
		BotID:    m.BotID,
	}
}

// TSTime converts a Slack timestamp ("1700000000.000200") to a time.
func TSTime(ts string) (time.Time, bool) {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var micros int64
	if frac != "" {
		for len(frac) < 6 {
			frac += "0"
		}
		if micros, err = strconv.ParseInt(frac[:6], 10, 64); err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(s, micros*int64(time.Microsecond)).UTC(), true
}
