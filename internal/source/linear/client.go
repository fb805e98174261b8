package linear

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

const issueFields = `
	id
	identifier
	title
	description
	priority
	url
	dueDate
	createdAt
	updatedAt
	completedAt
	canceledAt
	team { id key name }
	project { id name url }
	assignee { id name displayName email }
	parent { id }
	labels { nodes { name color } }`

const notificationsQuery = `query Notifications($first: Int!, $after: String) {
  notifications(first: $first, after: $after) {
    nodes {
      __typename
      id
      type
      readAt
      updatedAt
      snoozedUntilAt
      ... on IssueNotification {
        issue {` + issueFields + `
          state { id name type color }
        }
      }
      ... on ProjectNotification {
        project { id name url }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const assignedIssuesQuery = `query AssignedIssues($first: Int!, $after: String) {
  issues(
    first: $first
    after: $after
    filter: {
      assignee: { isMe: { eq: true } }
      state: { type: { nin: ["completed", "canceled"] } }
    }
  ) {
    nodes {` + issueFields + `
      state {
        id name type color
        team { states { nodes { id name type } } }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const notificationSubscribersQuery = `query NotificationSubscribers($id: String!) {
  notification(id: $id) {
    __typename
    user { id }
    ... on IssueNotification {
      issue { id subscribers { nodes { id } } }
    }
  }
}`

const archiveNotificationMutation = `mutation NotificationArchive($id: String!) {
  notificationArchive(id: $id) { success }
}`

const snoozeNotificationMutation = `mutation NotificationSnooze($id: String!, $snoozedUntilAt: DateTime!) {
  notificationUpdate(id: $id, input: { snoozedUntilAt: $snoozedUntilAt }) { success }
}`

const updateIssueSubscribersMutation = `mutation IssueUpdateSubscribers($id: String!, $subscriberIds: [String!]!) {
  issueUpdate(id: $id, input: { subscriberIds: $subscriberIds }) { success }
}`

const updateIssueStateMutation = `mutation IssueUpdateState($id: String!, $stateId: String!) {
  issueUpdate(id: $id, input: { stateId: $stateId }) { success }
}`

// Client runs the GraphQL operations of the sync against the Linear API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an API client whose base URL is the GraphQL endpoint.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func query[T any](ctx context.Context, c *Client, operation, document string, variables map[string]any) (*T, error) {
	var resp graphQLResponse[T]
	if err := c.api.Post(ctx, "", graphQLRequest{Query: document, Variables: variables}, &resp); err != nil {
		return nil, fmt.Errorf("linear %s: %w", operation, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("linear %s: %w", operation, graphQLErrors(resp.Errors))
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("linear %s: response has no data", operation)
	}
	return resp.Data, nil
}

// graphQLErrors maps authentication and missing entity errors onto the
// typed source errors.
func graphQLErrors(errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		switch {
		case e.Extensions.Code == "AUTHENTICATION_ERROR" || strings.EqualFold(e.Extensions.Type, "authentication error"):
			return &source.AuthError{Provider: model.ProviderLinear, Message: e.Message}
		case strings.Contains(e.Message, "Entity not found"):
			return &source.NotFoundError{Provider: model.ProviderLinear, Resource: e.Message}
		}
		messages = append(messages, e.Message)
	}
	return errors.New(strings.Join(messages, "; "))
}

func mutate(ctx context.Context, c *Client, operation, document string, variables map[string]any) error {
	data, err := query[map[string]mutationResult](ctx, c, operation, document, variables)
	if err != nil {
		return err
	}
	for _, result := range *data {
		if !result.Success {
			return fmt.Errorf("linear %s: mutation was not successful", operation)
		}
	}
	return nil
}

// ListNotifications pages through the user's inbox.
func (c *Client) ListNotifications(ctx context.Context, pageSize int) ([]NotificationNode, error) {
	var nodes []NotificationNode
	variables := map[string]any{"first": pageSize}
	for {
		data, err := query[notificationsData](ctx, c, "notifications", notificationsQuery, variables)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, data.Notifications.Nodes...)
		page := data.Notifications.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			return nodes, nil
		}
		variables["after"] = page.EndCursor
	}
}

// ListAssignedIssues pages through the open issues assigned to the user.
func (c *Client) ListAssignedIssues(ctx context.Context, pageSize int) ([]IssueNode, error) {
	var nodes []IssueNode
	variables := map[string]any{"first": pageSize}
	for {
		data, err := query[issuesData](ctx, c, "assigned issues", assignedIssuesQuery, variables)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, data.Issues.Nodes...)
		page := data.Issues.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			return nodes, nil
		}
		variables["after"] = page.EndCursor
	}
}

func (c *Client) ArchiveNotification(ctx context.Context, id string) error {
	return mutate(ctx, c, "notification archive", archiveNotificationMutation, map[string]any{"id": id})
}

func (c *Client) SnoozeNotification(ctx context.Context, id string, until time.Time) error {
	return mutate(ctx, c, "notification snooze", snoozeNotificationMutation, map[string]any{
		"id":             id,
		"snoozedUntilAt": until.UTC().Format(time.RFC3339),
	})
}

// UnsubscribeFromNotificationIssue removes the notified user from the
// subscribers of the notification's issue. Project notifications have
// no subscribers and are left alone.
func (c *Client) UnsubscribeFromNotificationIssue(ctx context.Context, notificationID string) error {
	data, err := query[notificationSubscribersData](ctx, c, "notification subscribers",
		notificationSubscribersQuery, map[string]any{"id": notificationID})
	if err != nil {
		return err
	}
	n := data.Notification
	if n.Typename != "IssueNotification" || n.Issue == nil {
		return nil
	}

	remaining := make([]string, 0, len(n.Issue.Subscribers.Nodes))
	for _, s := range n.Issue.Subscribers.Nodes {
		if s.ID != n.User.ID {
			remaining = append(remaining, s.ID)
		}
	}
	if len(remaining) == len(n.Issue.Subscribers.Nodes) {
		return nil
	}
	return mutate(ctx, c, "issue subscribers update", updateIssueSubscribersMutation, map[string]any{
		"id":            n.Issue.ID,
		"subscriberIds": remaining,
	})
}

func (c *Client) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	return mutate(ctx, c, "issue state update", updateIssueStateMutation, map[string]any{
		"id":      issueID,
		"stateId": stateID,
	})
}
