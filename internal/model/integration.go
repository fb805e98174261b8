package model

import (
	"fmt"
	"time"
)

// IntegrationConnectionStatus tracks whether a connection can be synced.
type IntegrationConnectionStatus string

const (
	ConnectionCreated   IntegrationConnectionStatus = "created"
	ConnectionValidated IntegrationConnectionStatus = "validated"
	ConnectionFailing   IntegrationConnectionStatus = "failing"
)

// SyncType is the kind of entity a sync run derives from items.
type SyncType string

const (
	SyncNotifications SyncType = "notifications"
	SyncTasks         SyncType = "tasks"
)

// SyncBookkeeping records the outcome of past runs of one sync type.
type SyncBookkeeping struct {
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	FailureMessage *string    `json:"failure_message,omitempty"`
	Failures       int        `json:"failures"`
}

// IntegrationConnection is one user's authorization and sync state for
// one provider.
type IntegrationConnection struct {
	ID           string                      `json:"id"`
	UserID       string                      `json:"user_id"`
	ProviderKind IntegrationProviderKind     `json:"provider_kind"`
	Status       IntegrationConnectionStatus `json:"status"`

	// FailureMessage explains the Failing status.
	FailureMessage *string `json:"failure_message,omitempty"`

	// ProviderUserID is the user's identifier in the provider, used to
	// ignore events the user triggered themself.
	ProviderUserID *string `json:"provider_user_id,omitempty"`

	Config  IntegrationConnectionConfig   `json:"config"`
	Context *IntegrationConnectionContext `json:"context,omitempty"`

	NotificationsSync SyncBookkeeping `json:"notifications_sync"`
	TasksSync         SyncBookkeeping `json:"tasks_sync"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sync returns the bookkeeping of the given sync type.
func (c IntegrationConnection) Sync(syncType SyncType) SyncBookkeeping {
	if syncType == SyncTasks {
		return c.TasksSync
	}
	return c.NotificationsSync
}

// IsValidated reports whether the connection may be synced.
func (c IntegrationConnection) IsValidated() bool {
	return c.Status == ConnectionValidated
}

// SlackSyncType selects what a Slack star or reaction turns into.
type SlackSyncType string

const (
	SlackSyncAsNotifications SlackSyncType = "as_notifications"
	SlackSyncAsTasks         SlackSyncType = "as_tasks"
)

// TaskDefaults are applied to tasks promoted from a non tracker source.
type TaskDefaults struct {
	Project   string        `json:"project,omitempty"`
	DueInDays *int          `json:"due_in_days,omitempty"`
	Priority  *TaskPriority `json:"priority,omitempty"`
}

// SlackSyncConfig drives how one Slack signal is synced.
type SlackSyncConfig struct {
	Enabled      bool          `json:"enabled"`
	SyncType     SlackSyncType `json:"sync_type"`
	TaskDefaults TaskDefaults  `json:"task_defaults"`
}

// SlackReactionConfig adds the watched emoji to a SlackSyncConfig.
type SlackReactionConfig struct {
	SlackSyncConfig
	ReactionName string `json:"reaction_name"`
}

// SlackMessageConfig drives thread syncing from message events.
type SlackMessageConfig struct {
	Enabled      bool `json:"enabled"`
	IsTwoWaySync bool `json:"is_two_way_sync"`
}

type GithubConfig struct {
	SyncNotificationsEnabled bool `json:"sync_notifications_enabled"`
}

type SlackConfig struct {
	StarConfig     SlackSyncConfig     `json:"star_config"`
	ReactionConfig SlackReactionConfig `json:"reaction_config"`
	MessageConfig  SlackMessageConfig  `json:"message_config"`
}

type GoogleMailConfig struct {
	SyncNotificationsEnabled bool            `json:"sync_notifications_enabled"`
	SyncedLabel              GoogleMailLabel `json:"synced_label"`
}

type GoogleCalendarConfig struct {
	SyncEventDetailsEnabled bool `json:"sync_event_details_enabled"`
}

type GoogleDriveConfig struct {
	SyncNotificationsEnabled bool `json:"sync_notifications_enabled"`
}

type LinearConfig struct {
	SyncNotificationsEnabled bool         `json:"sync_notifications_enabled"`
	SyncTasksEnabled         bool         `json:"sync_tasks_enabled"`
	TaskDefaults             TaskDefaults `json:"task_defaults"`
}

// TodoistConfig controls the Todoist task sync.
type TodoistConfig struct {
	SyncTasksEnabled                bool `json:"sync_tasks_enabled"`
	CreateNotificationFromInboxTask bool `json:"create_notification_from_inbox_task"`
}

type TickTickConfig struct {
	SyncTasksEnabled                bool `json:"sync_tasks_enabled"`
	CreateNotificationFromInboxTask bool `json:"create_notification_from_inbox_task"`
}

// IntegrationConnectionConfig holds the user's settings for one provider.
// Only the field of the connection's provider is set.
type IntegrationConnectionConfig struct {
	Github         *GithubConfig         `json:"github,omitempty"`
	Slack          *SlackConfig          `json:"slack,omitempty"`
	GoogleMail     *GoogleMailConfig     `json:"google_mail,omitempty"`
	GoogleCalendar *GoogleCalendarConfig `json:"google_calendar,omitempty"`
	GoogleDrive    *GoogleDriveConfig    `json:"google_drive,omitempty"`
	Linear         *LinearConfig         `json:"linear,omitempty"`
	Todoist        *TodoistConfig        `json:"todoist,omitempty"`
	TickTick       *TickTickConfig       `json:"ticktick,omitempty"`
}

// Kind returns the provider whose config is set.
func (c IntegrationConnectionConfig) Kind() (IntegrationProviderKind, error) {
	var kinds []IntegrationProviderKind
	if c.Github != nil {
		kinds = append(kinds, ProviderGithub)
	}
	if c.Slack != nil {
		kinds = append(kinds, ProviderSlack)
	}
	if c.GoogleMail != nil {
		kinds = append(kinds, ProviderGoogleMail)
	}
	if c.GoogleCalendar != nil {
		kinds = append(kinds, ProviderGoogleCalendar)
	}
	if c.GoogleDrive != nil {
		kinds = append(kinds, ProviderGoogleDrive)
	}
	if c.Linear != nil {
		kinds = append(kinds, ProviderLinear)
	}
	if c.Todoist != nil {
		kinds = append(kinds, ProviderTodoist)
	}
	if c.TickTick != nil {
		kinds = append(kinds, ProviderTickTick)
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("config must be set for exactly one provider, got %d", len(kinds))
	}
	return kinds[0], nil
}

// DefaultConfig returns the settings a freshly linked provider starts with.
func DefaultConfig(kind IntegrationProviderKind) IntegrationConnectionConfig {
	switch kind {
	case ProviderGithub:
		return IntegrationConnectionConfig{Github: &GithubConfig{SyncNotificationsEnabled: true}}
	case ProviderSlack:
		return IntegrationConnectionConfig{Slack: &SlackConfig{
			StarConfig: SlackSyncConfig{Enabled: true, SyncType: SlackSyncAsNotifications},
			ReactionConfig: SlackReactionConfig{
				SlackSyncConfig: SlackSyncConfig{Enabled: true, SyncType: SlackSyncAsNotifications},
				ReactionName:    "eyes",
			},
			MessageConfig: SlackMessageConfig{Enabled: true},
		}}
	case ProviderGoogleMail:
		return IntegrationConnectionConfig{GoogleMail: &GoogleMailConfig{
			SyncNotificationsEnabled: true,
			SyncedLabel:              GoogleMailLabel{ID: GoogleMailStarredLabel, Name: GoogleMailStarredLabel},
		}}
	case ProviderGoogleCalendar:
		return IntegrationConnectionConfig{GoogleCalendar: &GoogleCalendarConfig{SyncEventDetailsEnabled: true}}
	case ProviderGoogleDrive:
		return IntegrationConnectionConfig{GoogleDrive: &GoogleDriveConfig{SyncNotificationsEnabled: true}}
	case ProviderLinear:
		return IntegrationConnectionConfig{Linear: &LinearConfig{
			SyncNotificationsEnabled: true,
			SyncTasksEnabled:         true,
		}}
	case ProviderTodoist:
		return IntegrationConnectionConfig{Todoist: &TodoistConfig{SyncTasksEnabled: true}}
	case ProviderTickTick:
		return IntegrationConnectionConfig{TickTick: &TickTickConfig{SyncTasksEnabled: true}}
	}
	return IntegrationConnectionConfig{}
}

// GoogleMailContext caches the profile and labels of the mailbox.
type GoogleMailContext struct {
	UserEmailAddress string            `json:"user_email_address"`
	Labels           []GoogleMailLabel `json:"labels"`
}

// GoogleDriveContext caches the identity used for mention checks.
type GoogleDriveContext struct {
	UserEmailAddress string `json:"user_email_address"`
	UserDisplayName  string `json:"user_display_name"`
}

// TodoistContext holds the incremental sync cursor.
type TodoistContext struct {
	ItemsSyncToken string `json:"items_sync_token"`
}

// TickTickContext records the last full listing.
type TickTickContext struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// SlackContext caches the workspace and member of the connection.
type SlackContext struct {
	TeamID string `json:"team_id"`
	UserID string `json:"user_id,omitempty"`
}

// IntegrationConnectionContext is provider specific state mutated by syncs.
type IntegrationConnectionContext struct {
	GoogleMail  *GoogleMailContext  `json:"google_mail,omitempty"`
	GoogleDrive *GoogleDriveContext `json:"google_drive,omitempty"`
	Todoist     *TodoistContext     `json:"todoist,omitempty"`
	TickTick    *TickTickContext    `json:"ticktick,omitempty"`
	Slack       *SlackContext       `json:"slack,omitempty"`
}
