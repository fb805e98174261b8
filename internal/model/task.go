package model

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskActive  TaskStatus = "active"
	TaskDone    TaskStatus = "done"
	TaskDeleted TaskStatus = "deleted"
)

// TaskPriority goes from P1 (highest) to P4 (lowest).
type TaskPriority int

const (
	PriorityP1 TaskPriority = 1
	PriorityP2 TaskPriority = 2
	PriorityP3 TaskPriority = 3
	PriorityP4 TaskPriority = 4
)

// ParseTaskPriority accepts 1..4, anything else falls back to P4.
func ParseTaskPriority(p int) TaskPriority {
	if p >= int(PriorityP1) && p <= int(PriorityP4) {
		return TaskPriority(p)
	}
	return PriorityP4
}

// DueDate is either a calendar day (AllDay) or a precise instant.
type DueDate struct {
	Time   time.Time `json:"time"`
	AllDay bool      `json:"all_day"`
}

const dueDateLayout = "2006-01-02"

// ParseDueDate parses YYYY-MM-DD as an all-day date, anything else as
// RFC 3339.
func ParseDueDate(s string) (*DueDate, error) {
	if t, err := time.Parse(dueDateLayout, s); err == nil {
		return &DueDate{Time: t, AllDay: true}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &DueDate{Time: t.UTC()}, nil
		}
	}
	return nil, fmt.Errorf("parsing due date %q", s)
}

// String formats the date the way task trackers expect it.
func (d DueDate) String() string {
	if d.AllDay {
		return d.Time.Format(dueDateLayout)
	}
	return d.Time.UTC().Format(time.RFC3339)
}

// DueInDays returns an all-day due date n days after now.
func DueInDays(now time.Time, n int) *DueDate {
	day := now.UTC().AddDate(0, 0, n)
	return &DueDate{
		Time:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		AllDay: true,
	}
}

// Task is an actionable item, optionally mirrored in an external tracker.
type Task struct {
	// ID is the internal unique identifier for this task.
	ID string `json:"id"`

	// Title is the human-readable summary of the task.
	Title string `json:"title"`

	// Body is the description, usually markdown.
	Body string `json:"body"`

	Status      TaskStatus   `json:"status"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Priority    TaskPriority `json:"priority"`
	DueAt       *DueDate     `json:"due_at,omitempty"`
	Tags        []string     `json:"tags"`
	ParentID    *string      `json:"parent_id,omitempty"`

	// Project is the name of the project in the sink tracker.
	Project     string `json:"project"`
	IsRecurring bool   `json:"is_recurring"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID string `json:"user_id"`

	// Kind is the provider of the source item.
	Kind IntegrationProviderKind `json:"kind"`

	// SourceItem is the item the task was derived from.
	SourceItem ThirdPartyItem `json:"source_item"`

	// SinkItem is the task's mirror in an external tracker. For tasks
	// coming from a tracker it is the source item itself.
	SinkItem *ThirdPartyItem `json:"sink_item,omitempty"`
}

// CreateOrUpdateTaskRequest is what a task source derives from an item.
type CreateOrUpdateTaskRequest struct {
	Title       string
	Body        string
	Status      TaskStatus
	CompletedAt *time.Time
	Priority    TaskPriority
	DueAt       *DueDate
	Tags        []string
	ParentID    *string
	Project     string
	IsRecurring bool
	Kind        IntegrationProviderKind
	SourceItem  ThirdPartyItem
	SinkItem    *ThirdPartyItem
}

// TaskCreation is the payload sent to a sink to create a task there.
type TaskCreation struct {
	Title    string
	Body     string
	Project  ProjectSummary
	DueAt    *DueDate
	Priority TaskPriority
}

// ProjectSummary identifies a project in a task tracker.
type ProjectSummary struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Status     *TaskStatus   `json:"status,omitempty"`
	Title      *string       `json:"title,omitempty"`
	Body       *string       `json:"body,omitempty"`
	Project    *string       `json:"project,omitempty"`
	DueAt      *DueDate      `json:"due_at,omitempty"`
	Priority   *TaskPriority `json:"priority,omitempty"`
	SinkItemID *string       `json:"sink_item_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Status == nil && p.Title == nil && p.Body == nil && p.Project == nil &&
		p.DueAt == nil && p.Priority == nil && p.SinkItemID == nil
}

// TaskFilter restricts task listings.
type TaskFilter struct {
	UserID   string
	Statuses []TaskStatus
	Kind     *IntegrationProviderKind
	Limit    int
}
