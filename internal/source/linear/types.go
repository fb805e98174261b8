package linear

import (
	"time"

	"github.com/nhle/universal-inbox/internal/model"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
		Type string `json:"type"`
	} `json:"extensions"`
}

type graphQLResponse[T any] struct {
	Data   *T             `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type stateNode struct {
	ID    string                        `json:"id"`
	Name  string                        `json:"name"`
	Type  model.LinearWorkflowStateType `json:"type"`
	Color string                        `json:"color,omitempty"`

	// Team is only queried for assigned issues, to know where completing
	// or reopening an issue moves it.
	Team *struct {
		States struct {
			Nodes []stateNode `json:"nodes"`
		} `json:"states"`
	} `json:"team,omitempty"`
}

// IssueNode is an issue as returned by the GraphQL API.
type IssueNode struct {
	ID          string               `json:"id"`
	Identifier  string               `json:"identifier"`
	Title       string               `json:"title"`
	Description *string              `json:"description"`
	Priority    float64              `json:"priority"`
	URL         string               `json:"url"`
	DueDate     *string              `json:"dueDate"`
	State       stateNode            `json:"state"`
	Team        model.LinearTeam     `json:"team"`
	Project     *model.LinearProject `json:"project"`
	Assignee    *model.LinearUser    `json:"assignee"`
	Parent      *struct {
		ID string `json:"id"`
	} `json:"parent"`
	Labels struct {
		Nodes []model.LinearLabel `json:"nodes"`
	} `json:"labels"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CanceledAt  *time.Time `json:"canceledAt"`
}

// NotificationNode is one node of the notifications connection.
type NotificationNode struct {
	Typename       string               `json:"__typename"`
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	ReadAt         *time.Time           `json:"readAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	SnoozedUntilAt *time.Time           `json:"snoozedUntilAt"`
	Issue          *IssueNode           `json:"issue,omitempty"`
	Project        *model.LinearProject `json:"project,omitempty"`
}

type notificationsData struct {
	Notifications struct {
		Nodes    []NotificationNode `json:"nodes"`
		PageInfo pageInfo           `json:"pageInfo"`
	} `json:"notifications"`
}

type issuesData struct {
	Issues struct {
		Nodes    []IssueNode `json:"nodes"`
		PageInfo pageInfo    `json:"pageInfo"`
	} `json:"issues"`
}

type subscriber struct {
	ID string `json:"id"`
}

type notificationSubscribersData struct {
	Notification struct {
		Typename string `json:"__typename"`
		User     struct {
			ID string `json:"id"`
		} `json:"user"`
		Issue *struct {
			ID          string `json:"id"`
			Subscribers struct {
				Nodes []subscriber `json:"nodes"`
			} `json:"subscribers"`
		} `json:"issue,omitempty"`
	} `json:"notification"`
}

type mutationResult struct {
	Success bool `json:"success"`
}

func issueToModel(n IssueNode) *model.LinearIssue {
	issue := &model.LinearIssue{
		ID:          n.ID,
		Identifier:  n.Identifier,
		Title:       n.Title,
		Priority:    int(n.Priority),
		URL:         n.URL,
		State:       model.LinearWorkflowState{ID: n.State.ID, Name: n.State.Name, Type: n.State.Type, Color: n.State.Color},
		Team:        n.Team,
		Project:     n.Project,
		Labels:      n.Labels.Nodes,
		Assignee:    n.Assignee,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		CompletedAt: n.CompletedAt,
		CanceledAt:  n.CanceledAt,
	}
	if n.Description != nil {
		issue.Description = *n.Description
	}
	if n.DueDate != nil {
		issue.DueDate = *n.DueDate
	}
	if n.Parent != nil {
		issue.ParentID = n.Parent.ID
	}
	if n.State.Team != nil {
		issue.StateIDs = stateIDs(n.State.Team.States.Nodes)
	}
	return issue
}

// stateIDs picks the first state of each category the sync moves issues
// to. It is nil when the team lacks one of them.
func stateIDs(states []stateNode) *model.LinearWorkflowStateIDs {
	ids := model.LinearWorkflowStateIDs{}
	for _, s := range states {
		switch {
		case s.Type == model.LinearWorkflowStateUnstarted && ids.Unstarted == "":
			ids.Unstarted = s.ID
		case s.Type == model.LinearWorkflowStateCompleted && ids.Completed == "":
			ids.Completed = s.ID
		case s.Type == model.LinearWorkflowStateCanceled && ids.Canceled == "":
			ids.Canceled = s.ID
		}
	}
	if ids.Unstarted == "" || ids.Completed == "" || ids.Canceled == "" {
		return nil
	}
	return &ids
}

// notificationToModel returns nil for notification types the inbox does
// not handle, e.g. OAuth client approvals.
func notificationToModel(n NotificationNode) *model.LinearNotification {
	out := &model.LinearNotification{
		ID:             n.ID,
		Type:           n.Type,
		ReadAt:         n.ReadAt,
		UpdatedAt:      n.UpdatedAt,
		SnoozedUntilAt: n.SnoozedUntilAt,
	}
	switch {
	case n.Typename == "IssueNotification" && n.Issue != nil:
		out.Issue = issueToModel(*n.Issue)
	case n.Typename == "ProjectNotification" && n.Project != nil:
		out.Project = n.Project
	default:
		return nil
	}
	return out
}
