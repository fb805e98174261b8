package model

import "time"

// TodoistInboxProject is the name of the project Todoist creates for
// every account.
const TodoistInboxProject = "Inbox"

const defaultTodoistHTMLURL = "https://todoist.com/app/"

// TodoistItemDue is the due date of an item. Date is either YYYY-MM-DD or
// a full RFC 3339 date-time.
type TodoistItemDue struct {
	String      string `json:"string"`
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
	Timezone    string `json:"timezone,omitempty"`
	Lang        string `json:"lang,omitempty"`
}

// TodoistItem is a Todoist task. Priority goes from 1 (normal) to 4
// (urgent), the reverse of TaskPriority.
type TodoistItem struct {
	ID          string          `json:"id"`
	ParentID    string          `json:"parent_id,omitempty"`
	ProjectID   string          `json:"project_id"`
	SectionID   string          `json:"section_id,omitempty"`
	Content     string          `json:"content"`
	Description string          `json:"description"`
	Labels      []string        `json:"labels"`
	ChildOrder  int             `json:"child_order"`
	Priority    int             `json:"priority"`
	Checked     bool            `json:"checked"`
	IsDeleted   bool            `json:"is_deleted"`
	Collapsed   bool            `json:"collapsed,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	AddedAt     time.Time       `json:"added_at"`
	Due         *TodoistItemDue `json:"due,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
}

func (i *TodoistItem) ItemKind() ThirdPartyItemKind { return KindTodoistItem }

func (i *TodoistItem) HTMLURL() string {
	return defaultTodoistHTMLURL + "task/" + i.ID
}

// TaskPriority converts the Todoist priority scale.
func (i *TodoistItem) TaskPriority() TaskPriority {
	switch i.Priority {
	case 4:
		return PriorityP1
	case 3:
		return PriorityP2
	case 2:
		return PriorityP3
	}
	return PriorityP4
}

// TodoistPriority converts a task priority to the Todoist scale.
func TodoistPriority(p TaskPriority) int {
	switch p {
	case PriorityP1:
		return 4
	case PriorityP2:
		return 3
	case PriorityP3:
		return 2
	}
	return 1
}

// DueDate parses the item's due date, nil when unset or unparsable.
func (i *TodoistItem) DueDate() *DueDate {
	if i.Due == nil {
		return nil
	}
	due, err := ParseDueDate(i.Due.Date)
	if err != nil {
		return nil
	}
	return due
}
