package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

// Client is a thin client for the GitHub notifications REST API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// FetchNotifications returns one page of the user's notifications,
// read ones included.
func (c *Client) FetchNotifications(ctx context.Context, page, perPage int) ([]Notification, error) {
	query := url.Values{
		"all":      {"true"},
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	var notifications []Notification
	if err := c.api.Get(ctx, "/notifications", query, &notifications); err != nil {
		return nil, fmt.Errorf("fetching GitHub notifications page %d: %w", page, err)
	}
	return notifications, nil
}

// MarkThreadAsDone removes a thread from the inbox.
func (c *Client) MarkThreadAsDone(ctx context.Context, threadID string) error {
	err := c.api.Do(ctx, http.MethodDelete, "/notifications/threads/"+url.PathEscape(threadID), nil, nil)
	if err != nil {
		return fmt.Errorf("marking GitHub notification %s as done: %w", threadID, err)
	}
	return nil
}

// IgnoreThread mutes future notifications of a thread.
func (c *Client) IgnoreThread(ctx context.Context, threadID string) error {
	err := c.api.Put(ctx,
		"/notifications/threads/"+url.PathEscape(threadID)+"/subscription",
		ThreadSubscription{Ignored: true}, nil)
	if err != nil {
		return fmt.Errorf("unsubscribing from GitHub notification %s: %w", threadID, err)
	}
	return nil
}
