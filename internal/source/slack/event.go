package slack

import (
	"regexp"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
)

// Event types handled from the Events API.
const (
	EventStarAdded       = "star_added"
	EventStarRemoved     = "star_removed"
	EventReactionAdded   = "reaction_added"
	EventReactionRemoved = "reaction_removed"
	EventMessage         = "message"
)

// Event is an Events API callback whose signature was already checked.
type Event struct {
	TeamID string    `json:"team_id"`
	Event  EventBody `json:"event"`
}

// EventBody is the inner event. Which fields are set depends on Type.
type EventBody struct {
	Type string `json:"type"`

	// User starred, reacted or posted.
	User string `json:"user,omitempty"`

	// ItemUser authored the reacted message.
	ItemUser string     `json:"item_user,omitempty"`
	Reaction string     `json:"reaction,omitempty"`
	Item     *EventItem `json:"item,omitempty"`

	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Text     string `json:"text,omitempty"`
	BotID    string `json:"bot_id,omitempty"`

	EventTS string `json:"event_ts"`
}

// EventItem is the object a star or reaction event points to.
type EventItem struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	TS      string   `json:"ts,omitempty"`
	Message *Message `json:"message,omitempty"`
	File    *File    `json:"file,omitempty"`
}

func (e *Event) EventType() string { return e.Event.Type }

var mentionPattern = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)

// Recipients are the starring or reacting user, or the users mentioned
// in a message.
func (e *Event) Recipients() []string {
	switch e.Event.Type {
	case EventStarAdded, EventStarRemoved, EventReactionAdded, EventReactionRemoved:
		return []string{e.Event.User}
	case EventMessage:
		seen := make(map[string]bool)
		var users []string
		for _, m := range mentionPattern.FindAllStringSubmatch(e.Event.Text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				users = append(users, m[1])
			}
		}
		return users
	}
	return nil
}

// Sender is only reported for messages.
func (e *Event) Sender() string {
	if e.Event.Type == EventMessage {
		return e.Event.User
	}
	return ""
}

// Follows points replies to the thread they are posted in.
func (e *Event) Follows() (model.ThirdPartyItemKind, string, bool) {
	if e.Event.Type != EventMessage || e.Event.ThreadTS == "" {
		return "", "", false
	}
	return model.KindSlackThread, e.Event.Channel + ":" + e.Event.ThreadTS, true
}

func (e *Event) occurredAt() time.Time {
	if t, ok := TSTime(e.Event.EventTS); ok {
		return t
	}
	return time.Now().UTC()
}
