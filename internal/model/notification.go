package model

import "time"

// NotificationStatus is the triage state of a notification.
type NotificationStatus string

const (
	NotificationUnread       NotificationStatus = "unread"
	NotificationRead         NotificationStatus = "read"
	NotificationDeleted      NotificationStatus = "deleted"
	NotificationUnsubscribed NotificationStatus = "unsubscribed"
)

// Notification is a user-facing signal derived from exactly one
// ThirdPartyItem.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// Title is the human-readable summary.
	Title string `json:"title"`

	Status NotificationStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastReadAt is when the user last read the upstream object.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`

	// SnoozedUntil hides the notification until the given time. It
	// survives resyncs.
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`

	UserID string `json:"user_id"`

	// Kind is the provider the notification comes from.
	Kind IntegrationProviderKind `json:"kind"`

	// TaskID links to a task created from the same item. It survives
	// resyncs.
	TaskID *string `json:"task_id,omitempty"`

	// SourceItem is the item the notification was derived from.
	SourceItem ThirdPartyItem `json:"source_item"`
}

// IsSnoozed reports whether the notification is hidden at now.
func (n Notification) IsSnoozed(now time.Time) bool {
	return n.SnoozedUntil != nil && n.SnoozedUntil.After(now)
}

// NotificationPatch is a partial update. Nil fields are left untouched.
type NotificationPatch struct {
	Status       *NotificationStatus `json:"status,omitempty"`
	SnoozedUntil *time.Time          `json:"snoozed_until,omitempty"`
	TaskID       *string             `json:"task_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NotificationPatch) IsEmpty() bool {
	return p.Status == nil && p.SnoozedUntil == nil && p.TaskID == nil
}

// NotificationFilter restricts notification listings.
type NotificationFilter struct {
	UserID         string
	Statuses       []NotificationStatus
	Kind           *IntegrationProviderKind
	IncludeSnoozed bool
	TaskID         *string
	Limit          int
	Now            time.Time
}
