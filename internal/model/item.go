package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
)

// IntegrationProviderKind identifies the external service an integration
// connection, a notification or a task comes from.
type IntegrationProviderKind string

const (
	ProviderGithub         IntegrationProviderKind = "github"
	ProviderSlack          IntegrationProviderKind = "slack"
	ProviderGoogleMail     IntegrationProviderKind = "google_mail"
	ProviderGoogleCalendar IntegrationProviderKind = "google_calendar"
	ProviderGoogleDrive    IntegrationProviderKind = "google_drive"
	ProviderLinear         IntegrationProviderKind = "linear"
	ProviderTodoist        IntegrationProviderKind = "todoist"
	ProviderTickTick       IntegrationProviderKind = "ticktick"
)

// ProviderKinds lists every supported provider in a stable order.
func ProviderKinds() []IntegrationProviderKind {
	return []IntegrationProviderKind{
		ProviderGithub,
		ProviderSlack,
		ProviderGoogleMail,
		ProviderGoogleCalendar,
		ProviderGoogleDrive,
		ProviderLinear,
		ProviderTodoist,
		ProviderTickTick,
	}
}

// ParseProviderKind validates a provider name given by a user.
func ParseProviderKind(s string) (IntegrationProviderKind, error) {
	for _, kind := range ProviderKinds() {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ThirdPartyItemKind is the discriminant of ThirdPartyItemData.
type ThirdPartyItemKind string

const (
	KindGithubNotification  ThirdPartyItemKind = "github_notification"
	KindSlackStar           ThirdPartyItemKind = "slack_star"
	KindSlackReaction       ThirdPartyItemKind = "slack_reaction"
	KindSlackThread         ThirdPartyItemKind = "slack_thread"
	KindGoogleMailThread    ThirdPartyItemKind = "google_mail_thread"
	KindGoogleCalendarEvent ThirdPartyItemKind = "google_calendar_event"
	KindGoogleDriveComment  ThirdPartyItemKind = "google_drive_comment"
	KindLinearNotification  ThirdPartyItemKind = "linear_notification"
	KindLinearIssue         ThirdPartyItemKind = "linear_issue"
	KindTodoistItem         ThirdPartyItemKind = "todoist_item"
	KindTickTickItem        ThirdPartyItemKind = "ticktick_item"
)

// Provider returns the provider owning items of this kind.
func (k ThirdPartyItemKind) Provider() IntegrationProviderKind {
	switch k {
	case KindGithubNotification:
		return ProviderGithub
	case KindSlackStar, KindSlackReaction, KindSlackThread:
		return ProviderSlack
	case KindGoogleMailThread:
		return ProviderGoogleMail
	case KindGoogleCalendarEvent:
		return ProviderGoogleCalendar
	case KindGoogleDriveComment:
		return ProviderGoogleDrive
	case KindLinearNotification, KindLinearIssue:
		return ProviderLinear
	case KindTodoistItem:
		return ProviderTodoist
	case KindTickTickItem:
		return ProviderTickTick
	}
	return ""
}

// ThirdPartyItemData is the closed set of provider payloads a
// ThirdPartyItem can wrap. Exactly one variant is populated per item.
type ThirdPartyItemData interface {
	// ItemKind reports the variant discriminant.
	ItemKind() ThirdPartyItemKind

	// HTMLURL links to the object in the provider's web UI.
	HTMLURL() string
}

// DecodeItemData decodes a persisted payload according to its kind.
func DecodeItemData(kind ThirdPartyItemKind, raw []byte) (ThirdPartyItemData, error) {
	var data ThirdPartyItemData
	switch kind {
	case KindGithubNotification:
		data = &GithubNotification{}
	case KindSlackStar:
		data = &SlackStar{}
	case KindSlackReaction:
		data = &SlackReaction{}
	case KindSlackThread:
		data = &SlackThread{}
	case KindGoogleMailThread:
		data = &GoogleMailThread{}
	case KindGoogleCalendarEvent:
		data = &GoogleCalendarEvent{}
	case KindGoogleDriveComment:
		data = &GoogleDriveComment{}
	case KindLinearNotification:
		data = &LinearNotification{}
	case KindLinearIssue:
		data = &LinearIssue{}
	case KindTodoistItem:
		data = &TodoistItem{}
	case KindTickTickItem:
		data = &TickTickItem{}
	default:
		return nil, fmt.Errorf("unknown third party item kind %q", kind)
	}

	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return data, nil
}

// ThirdPartyItem is the canonical envelope around one external object.
// Its natural key is (UserID, SourceID, IntegrationConnectionID).
type ThirdPartyItem struct {
	// ID is assigned on first creation and never changes.
	ID string

	// SourceID is the object's identifier in the provider. It is only
	// unique within a user's integration connection.
	SourceID string

	Data ThirdPartyItemData

	UserID                  string
	IntegrationConnectionID string

	CreatedAt time.Time
	UpdatedAt time.Time

	// SourceItem is a snapshot of the item this one was derived from,
	// e.g. the mail thread carrying a calendar invitation.
	SourceItem *ThirdPartyItem
}

// Kind returns the payload discriminant.
func (i ThirdPartyItem) Kind() ThirdPartyItemKind {
	if i.Data == nil {
		return ""
	}
	return i.Data.ItemKind()
}

// Provider returns the provider of the payload.
func (i ThirdPartyItem) Provider() IntegrationProviderKind {
	return i.Kind().Provider()
}

// HTMLURL links to the external object.
func (i ThirdPartyItem) HTMLURL() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.HTMLURL()
}

type thirdPartyItemJSON struct {
	ID                      string             `json:"id"`
	SourceID                string             `json:"source_id"`
	Kind                    ThirdPartyItemKind `json:"kind"`
	Data                    json.RawMessage    `json:"data"`
	UserID                  string             `json:"user_id"`
	IntegrationConnectionID string             `json:"integration_connection_id"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
	SourceItem              *ThirdPartyItem    `json:"source_item,omitempty"`
}

// MarshalJSON encodes the item with its kind next to the payload.
func (i ThirdPartyItem) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(i.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", i.Kind(), err)
	}
	return json.Marshal(thirdPartyItemJSON{
		ID:                      i.ID,
		SourceID:                i.SourceID,
		Kind:                    i.Kind(),
		Data:                    data,
		UserID:                  i.UserID,
		IntegrationConnectionID: i.IntegrationConnectionID,
		CreatedAt:               i.CreatedAt,
		UpdatedAt:               i.UpdatedAt,
		SourceItem:              i.SourceItem,
	})
}

// UnmarshalJSON decodes the payload variant named by the kind field.
func (i *ThirdPartyItem) UnmarshalJSON(b []byte) error {
	var raw thirdPartyItemJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeItemData(raw.Kind, raw.Data)
	if err != nil {
		return err
	}
	*i = ThirdPartyItem{
		ID:                      raw.ID,
		SourceID:                raw.SourceID,
		Data:                    data,
		UserID:                  raw.UserID,
		IntegrationConnectionID: raw.IntegrationConnectionID,
		CreatedAt:               raw.CreatedAt,
		UpdatedAt:               raw.UpdatedAt,
		SourceItem:              raw.SourceItem,
	}
	return nil
}

// SameContent reports whether two items describe the same external state.
// Identifiers assigned locally and timestamps are ignored.
func SameContent(a, b ThirdPartyItem) bool {
	if a.SourceID != b.SourceID ||
		a.UserID != b.UserID ||
		a.IntegrationConnectionID != b.IntegrationConnectionID ||
		a.Kind() != b.Kind() {
		return false
	}
	if !cmp.Equal(a.Data, b.Data) {
		return false
	}
	switch {
	case a.SourceItem == nil && b.SourceItem == nil:
		return true
	case a.SourceItem == nil || b.SourceItem == nil:
		return false
	}
	return a.SourceItem.ID == b.SourceItem.ID
}

// MarkedAsDone returns a copy of the item whose payload reflects a
// completed or removed upstream state. It is applied to items that
// disappeared from a provider's full listing. Kinds without such a state
// are returned unchanged.
func (i ThirdPartyItem) MarkedAsDone(now time.Time) ThirdPartyItem {
	var data ThirdPartyItemData
	switch d := i.Data.(type) {
	case *TodoistItem:
		item := *d
		item.Checked = true
		item.CompletedAt = &now
		data = &item
	case *SlackStar:
		star := *d
		star.State = SlackStarRemoved
		data = &star
	case *SlackReaction:
		reaction := *d
		reaction.State = SlackReactionRemoved
		data = &reaction
	case *SlackThread:
		thread := *d
		thread.Messages = append([]SlackThreadMessage(nil), d.Messages...)
		if len(thread.Messages) > 0 {
			thread.Messages[0].LastRead = thread.Messages[len(thread.Messages)-1].TS
		}
		data = &thread
	case *LinearIssue:
		issue := *d
		issue.State.Type = LinearWorkflowStateCompleted
		issue.CompletedAt = &now
		data = &issue
	case *TickTickItem:
		item := *d
		item.Status = TickTickStatusCompleted
		item.CompletedTime = &TickTickTime{Time: now}
		data = &item
	default:
		return i
	}

	marked := i
	marked.Data = data
	marked.UpdatedAt = now
	return marked
}
