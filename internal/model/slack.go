package model

import (
	"strings"
	"time"
)

const defaultSlackHTMLURL = "https://app.slack.com"

// SlackStarState is whether the user still has the item starred.
type SlackStarState string

const (
	SlackStarAdded   SlackStarState = "star_added"
	SlackStarRemoved SlackStarState = "star_removed"
)

// SlackReactionState is whether the user's reaction is still present.
type SlackReactionState string

const (
	SlackReactionAdded   SlackReactionState = "reaction_added"
	SlackReactionRemoved SlackReactionState = "reaction_removed"
)

// Slack item types shared by stars and reactions.
const (
	SlackItemMessage = "message"
	SlackItemFile    = "file"
	SlackItemChannel = "channel"
	SlackItemIM      = "im"
	SlackItemGroup   = "group"
)

// SlackTeamInfo identifies a workspace.
type SlackTeamInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
	Icon   string `json:"icon,omitempty"`
}

// SlackChannelInfo identifies a conversation.
type SlackChannelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	IsChannel bool   `json:"is_channel,omitempty"`
	IsGroup   bool   `json:"is_group,omitempty"`
	IsIM      bool   `json:"is_im,omitempty"`
	IsMPIM    bool   `json:"is_mpim,omitempty"`
}

// SlackSender is the resolved author of a message, user or bot.
type SlackSender struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	RealName  string `json:"real_name,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName prefers the real name over the handle.
func (s SlackSender) DisplayName() string {
	if s.RealName != "" {
		return s.RealName
	}
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// SlackMessage is one message of a conversation history.
type SlackMessage struct {
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text"`
	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// SlackMessageDetails is a message with its resolved channel, sender and team.
type SlackMessageDetails struct {
	URL     string           `json:"url"`
	Message SlackMessage     `json:"message"`
	Channel SlackChannelInfo `json:"channel"`
	Sender  SlackSender      `json:"sender"`
	Team    SlackTeamInfo    `json:"team"`
}

// SlackFileDetails is a starred or reacted file.
type SlackFileDetails struct {
	ID      string           `json:"id"`
	Title   string           `json:"title,omitempty"`
	URL     string           `json:"url,omitempty"`
	Channel SlackChannelInfo `json:"channel"`
	Sender  *SlackSender     `json:"sender,omitempty"`
	Team    SlackTeamInfo    `json:"team"`
}

// SlackItem is the object a star or a reaction points to. Type selects
// which of the pointers is set.
type SlackItem struct {
	Type    string               `json:"type"`
	Message *SlackMessageDetails `json:"message,omitempty"`
	File    *SlackFileDetails    `json:"file,omitempty"`
	Channel *SlackChannelInfo    `json:"channel,omitempty"`
	Team    *SlackTeamInfo       `json:"team,omitempty"`
}

// ID builds a stable identifier for the pointed object.
func (i SlackItem) ID() string {
	switch {
	case i.Message != nil:
		return i.Message.Channel.ID + ":" + i.Message.Message.TS
	case i.File != nil:
		return "file:" + i.File.ID
	case i.Channel != nil:
		return "channel:" + i.Channel.ID
	}
	return i.Type
}

// Title summarizes the pointed object in one line.
func (i SlackItem) Title() string {
	switch {
	case i.Message != nil:
		return summarizeSlackText(i.Message.Message.Text)
	case i.File != nil:
		if i.File.Title != "" {
			return i.File.Title
		}
		return "Slack file"
	case i.Channel != nil:
		return "#" + i.Channel.Name
	}
	return "Slack item"
}

// Content is the full text of the pointed object.
func (i SlackItem) Content() string {
	switch {
	case i.Message != nil:
		return i.Message.Message.Text
	case i.File != nil:
		return i.File.Title
	case i.Channel != nil:
		return "#" + i.Channel.Name
	}
	return ""
}

// HTMLURL links to the pointed object.
func (i SlackItem) HTMLURL() string {
	switch {
	case i.Message != nil && i.Message.URL != "":
		return i.Message.URL
	case i.File != nil && i.File.URL != "":
		return i.File.URL
	case i.Channel != nil && i.Team != nil:
		return defaultSlackHTMLURL + "/client/" + i.Team.ID + "/" + i.Channel.ID
	}
	return defaultSlackHTMLURL
}

// SlackStar is a starred ("saved for later") Slack item.
type SlackStar struct {
	State     SlackStarState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	Item      SlackItem      `json:"item"`
}

func (s *SlackStar) ItemKind() ThirdPartyItemKind { return KindSlackStar }
func (s *SlackStar) HTMLURL() string             { return s.Item.HTMLURL() }

// SourceID is the natural identifier of the starred item.
func (s *SlackStar) SourceID() string { return s.Item.ID() }

// SlackReaction is an emoji reaction the user put on a Slack item.
type SlackReaction struct {
	Name string `json:"name"`

	// EmojiURL is set for custom workspace emojis.
	EmojiURL  string             `json:"emoji_url,omitempty"`
	State     SlackReactionState `json:"state"`
	CreatedAt time.Time          `json:"created_at"`
	Item      SlackItem          `json:"item"`
}

func (r *SlackReaction) ItemKind() ThirdPartyItemKind { return KindSlackReaction }
func (r *SlackReaction) HTMLURL() string             { return r.Item.HTMLURL() }

// SourceID is the natural identifier of the reaction.
func (r *SlackReaction) SourceID() string { return r.Name + ":" + r.Item.ID() }

// SlackThreadMessage is one message of a thread. LastRead is only
// reported on the parent message.
type SlackThreadMessage struct {
	TS         string      `json:"ts"`
	ThreadTS   string      `json:"thread_ts,omitempty"`
	Text       string      `json:"text"`
	Sender     SlackSender `json:"sender"`
	LastRead   string      `json:"last_read,omitempty"`
	ReplyCount int         `json:"reply_count,omitempty"`
}

// SlackThread is a conversation thread the user takes part in.
type SlackThread struct {
	URL        string               `json:"url"`
	Messages   []SlackThreadMessage `json:"messages"`
	Channel    SlackChannelInfo     `json:"channel"`
	Team       SlackTeamInfo        `json:"team"`
	Subscribed bool                 `json:"subscribed"`
}

func (t *SlackThread) ItemKind() ThirdPartyItemKind { return KindSlackThread }

func (t *SlackThread) HTMLURL() string {
	if t.URL != "" {
		return t.URL
	}
	return defaultSlackHTMLURL + "/client/" + t.Team.ID + "/" + t.Channel.ID
}

// SourceID is the channel and the parent message timestamp.
func (t *SlackThread) SourceID() string {
	if len(t.Messages) == 0 {
		return t.Channel.ID
	}
	root := t.Messages[0].ThreadTS
	if root == "" {
		root = t.Messages[0].TS
	}
	return t.Channel.ID + ":" + root
}

// LastRead returns the timestamp of the last message the user read.
func (t *SlackThread) LastRead() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[0].LastRead
}

// LastMessageTS returns the timestamp of the most recent message.
func (t *SlackThread) LastMessageTS() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return t.Messages[len(t.Messages)-1].TS
}

// Title summarizes the parent message.
func (t *SlackThread) Title() string {
	if len(t.Messages) == 0 {
		return "Slack thread"
	}
	return summarizeSlackText(t.Messages[0].Text)
}

// summarizeSlackText keeps the first line of a message and strips the
// mrkdwn markers that do not read well as a title.
func summarizeSlackText(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.NewReplacer("*", "", "_", "", "~", "", "`", "").Replace(line)
	if line == "" {
		return "Slack message"
	}
	const maxLen = 120
	if runes := []rune(line); len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return line
}
