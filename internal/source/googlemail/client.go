package googlemail

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

// Client is a thin client for the Gmail REST API, always acting on the
// authenticated mailbox.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var p Profile
	if err := c.api.Get(ctx, "/users/me/profile", nil, &p); err != nil {
		return Profile{}, fmt.Errorf("fetching Google Mail profile: %w", err)
	}
	return p, nil
}

func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var list labelList
	if err := c.api.Get(ctx, "/users/me/labels", nil, &list); err != nil {
		return nil, fmt.Errorf("fetching Google Mail labels: %w", err)
	}
	return list.Labels, nil
}

// ListThreads returns one page of the threads carrying every label.
func (c *Client) ListThreads(
	ctx context.Context,
	labelIDs []string,
	pageToken string,
	maxResults int,
) ([]ThreadSummary, string, error) {
	query := url.Values{
		"prettyPrint": {"false"},
		"maxResults":  {strconv.Itoa(maxResults)},
		"labelIds":    labelIDs,
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	var list threadList
	if err := c.api.Get(ctx, "/users/me/threads", query, &list); err != nil {
		return nil, "", fmt.Errorf("listing Google Mail threads: %w", err)
	}
	return list.Threads, list.NextPageToken, nil
}

// GetThread returns a thread with its messages. Small MIME parts, such
// as calendar invitations, come inlined.
func (c *Client) GetThread(ctx context.Context, id string) (Thread, error) {
	query := url.Values{"prettyPrint": {"false"}, "format": {"full"}}
	var t Thread
	if err := c.api.Get(ctx, "/users/me/threads/"+url.PathEscape(id), query, &t); err != nil {
		return Thread{}, fmt.Errorf("fetching Google Mail thread %s: %w", id, err)
	}
	return t, nil
}

// ModifyThread adds and removes labels on every message of a thread.
func (c *Client) ModifyThread(ctx context.Context, id string, add, remove []string) error {
	req := modifyRequest{AddLabelIDs: add, RemoveLabelIDs: remove}
	if req.AddLabelIDs == nil {
		req.AddLabelIDs = []string{}
	}
	if err := c.api.Post(ctx, "/users/me/threads/"+url.PathEscape(id)+"/modify", req, nil); err != nil {
		return fmt.Errorf("modifying labels of Google Mail thread %s: %w", id, err)
	}
	return nil
}
