package model

import "time"

// LinearWorkflowStateType is the category of a Linear workflow state.
type LinearWorkflowStateType string

const (
	LinearWorkflowStateTriage    LinearWorkflowStateType = "triage"
	LinearWorkflowStateBacklog   LinearWorkflowStateType = "backlog"
	LinearWorkflowStateUnstarted LinearWorkflowStateType = "unstarted"
	LinearWorkflowStateStarted   LinearWorkflowStateType = "started"
	LinearWorkflowStateCompleted LinearWorkflowStateType = "completed"
	LinearWorkflowStateCanceled  LinearWorkflowStateType = "canceled"
)

const defaultLinearHTMLURL = "https://linear.app"

// LinearWorkflowState is the state an issue is in.
type LinearWorkflowState struct {
	ID    string                  `json:"id"`
	Name  string                  `json:"name"`
	Type  LinearWorkflowStateType `json:"type"`
	Color string                  `json:"color,omitempty"`
}

// LinearWorkflowStateIDs are the team states an issue moves to when its
// task changes status.
type LinearWorkflowStateIDs struct {
	Unstarted string `json:"unstarted"`
	Completed string `json:"completed"`
	Canceled  string `json:"canceled"`
}

// LinearTeam owns issues and workflow states.
type LinearTeam struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// LinearProject groups issues.
type LinearProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LinearLabel is an issue label.
type LinearLabel struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// LinearUser is an issue assignee or creator.
type LinearUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// LinearIssue is an issue, used both as a task source and as the subject
// of issue notifications. Priority ranges from 0 (none) to 4 (low), 1
// being urgent.
type LinearIssue struct {
	ID          string              `json:"id"`
	Identifier  string              `json:"identifier"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Priority    int                 `json:"priority"`
	URL         string              `json:"url"`
	DueDate     string              `json:"dueDate,omitempty"`
	State       LinearWorkflowState `json:"state"`
	Team        LinearTeam          `json:"team"`
	Project     *LinearProject      `json:"project,omitempty"`
	Labels      []LinearLabel       `json:"labels,omitempty"`
	Assignee    *LinearUser         `json:"assignee,omitempty"`
	ParentID    string              `json:"parentId,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
	CanceledAt  *time.Time          `json:"canceledAt,omitempty"`

	// StateIDs is missing on issues only seen through notifications.
	StateIDs *LinearWorkflowStateIDs `json:"stateIds,omitempty"`
}

func (i *LinearIssue) ItemKind() ThirdPartyItemKind { return KindLinearIssue }

func (i *LinearIssue) HTMLURL() string {
	if i.URL != "" {
		return i.URL
	}
	return defaultLinearHTMLURL
}

// IsDone reports whether the issue sits in a completed or canceled state.
func (i *LinearIssue) IsDone() bool {
	return i.State.Type == LinearWorkflowStateCompleted || i.State.Type == LinearWorkflowStateCanceled
}

// TaskStatus maps the workflow state category onto a task status.
func (i *LinearIssue) TaskStatus() TaskStatus {
	switch i.State.Type {
	case LinearWorkflowStateCompleted:
		return TaskDone
	case LinearWorkflowStateCanceled:
		return TaskDeleted
	}
	return TaskActive
}

// StateIDFor returns the team state matching a task status.
func (i *LinearIssue) StateIDFor(status TaskStatus) (string, bool) {
	if i.StateIDs == nil {
		return "", false
	}
	var id string
	switch status {
	case TaskActive:
		id = i.StateIDs.Unstarted
	case TaskDone:
		id = i.StateIDs.Completed
	case TaskDeleted:
		id = i.StateIDs.Canceled
	}
	return id, id != ""
}

// TaskPriority maps Linear priorities, 1 urgent to 4 low, onto P1..P4.
// Issues without priority get P4.
func (i *LinearIssue) TaskPriority() TaskPriority {
	return ParseTaskPriority(i.Priority)
}

// LinearNotification is an inbox notification about an issue or a project.
// Exactly one of Issue and Project is set.
type LinearNotification struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	ReadAt         *time.Time     `json:"readAt,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	SnoozedUntilAt *time.Time     `json:"snoozedUntilAt,omitempty"`
	Issue          *LinearIssue   `json:"issue,omitempty"`
	Project        *LinearProject `json:"project,omitempty"`
}

func (n *LinearNotification) ItemKind() ThirdPartyItemKind { return KindLinearNotification }

func (n *LinearNotification) HTMLURL() string {
	switch {
	case n.Issue != nil:
		return n.Issue.HTMLURL()
	case n.Project != nil && n.Project.URL != "":
		return n.Project.URL
	}
	return defaultLinearHTMLURL
}

// Title is the subject's title or name.
func (n *LinearNotification) Title() string {
	switch {
	case n.Issue != nil:
		return n.Issue.Title
	case n.Project != nil:
		return n.Project.Name
	}
	return "Linear notification"
}
