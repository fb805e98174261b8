package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TickTickInboxProject is the name shown for the default project.
const TickTickInboxProject = "Inbox"

const defaultTickTickHTMLURL = "https://ticktick.com/webapp/"

// TickTick priorities: 0 none, 1 low, 3 medium, 5 high.
const (
	TickTickPriorityNone   = 0
	TickTickPriorityLow    = 1
	TickTickPriorityMedium = 3
	TickTickPriorityHigh   = 5
)

// TickTick task statuses.
const (
	TickTickStatusNormal    = 0
	TickTickStatusCompleted = 2
)

const tickTickTimeLayout = "2006-01-02T15:04:05.000-0700"

// TickTickTime is a timestamp in TickTick's wire format, whose zone
// offset has no colon.
type TickTickTime struct {
	time.Time
}

func (t TickTickTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(tickTickTimeLayout))
}

func (t *TickTickTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decoding ticktick time: %w", err)
	}
	for _, layout := range []string{tickTickTimeLayout, "2006-01-02T15:04:05-0700", time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parsing ticktick time %q", s)
}

// TickTickChecklistItem is a subtask of a TickTick task.
type TickTickChecklistItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	SortOrder int64  `json:"sortOrder,omitempty"`
}

// TickTickItem is a TickTick task.
type TickTickItem struct {
	ID            string                  `json:"id"`
	ProjectID     string                  `json:"projectId"`
	Title         string                  `json:"title"`
	Content       string                  `json:"content,omitempty"`
	Desc          string                  `json:"desc,omitempty"`
	AllDay        bool                    `json:"allDay,omitempty"`
	StartDate     *TickTickTime           `json:"startDate,omitempty"`
	DueDate       *TickTickTime           `json:"dueDate,omitempty"`
	TimeZone      string                  `json:"timeZone,omitempty"`
	Repeat        string                  `json:"repeatFlag,omitempty"`
	Priority      int                     `json:"priority"`
	Status        int                     `json:"status"`
	CompletedTime *TickTickTime           `json:"completedTime,omitempty"`
	SortOrder     int64                   `json:"sortOrder,omitempty"`
	Items         []TickTickChecklistItem `json:"items,omitempty"`
	Tags          []string                `json:"tags,omitempty"`
	CreatedTime   *TickTickTime           `json:"createdTime,omitempty"`
	ModifiedTime  *TickTickTime           `json:"modifiedTime,omitempty"`
}

func (i *TickTickItem) ItemKind() ThirdPartyItemKind { return KindTickTickItem }

func (i *TickTickItem) HTMLURL() string {
	return defaultTickTickHTMLURL + "#p/" + i.ProjectID + "/tasks/" + i.ID
}

// IsCompleted reports whether the task is checked off.
func (i *TickTickItem) IsCompleted() bool {
	return i.Status == TickTickStatusCompleted
}

// IsRecurring reports whether the task repeats.
func (i *TickTickItem) IsRecurring() bool {
	return i.Repeat != ""
}

// TaskPriority converts the TickTick priority scale.
func (i *TickTickItem) TaskPriority() TaskPriority {
	switch i.Priority {
	case TickTickPriorityHigh:
		return PriorityP1
	case TickTickPriorityMedium:
		return PriorityP2
	case TickTickPriorityLow:
		return PriorityP3
	}
	return PriorityP4
}

// TickTickPriority converts a task priority to the TickTick scale.
func TickTickPriority(p TaskPriority) int {
	switch p {
	case PriorityP1:
		return TickTickPriorityHigh
	case PriorityP2:
		return TickTickPriorityMedium
	case PriorityP3:
		return TickTickPriorityLow
	}
	return TickTickPriorityNone
}

// Due returns the task's due date.
func (i *TickTickItem) Due() *DueDate {
	if i.DueDate == nil {
		return nil
	}
	return &DueDate{Time: i.DueDate.UTC(), AllDay: i.AllDay}
}
