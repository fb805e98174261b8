package googlecalendar

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

const primaryCalendar = "primary"

type eventList struct {
	Items         []model.GoogleCalendarEvent `json:"items"`
	NextPageToken string                      `json:"nextPageToken,omitempty"`
}

// Client is a thin client for the Google Calendar REST API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// FindEventByICalUID returns the event of the primary calendar with the
// given iCalendar UID, nil when there is none.
func (c *Client) FindEventByICalUID(ctx context.Context, uid string) (*model.GoogleCalendarEvent, error) {
	query := url.Values{"iCalUID": {uid}, "maxResults": {"1"}}
	var list eventList
	if err := c.api.Get(ctx, "/calendars/"+primaryCalendar+"/events", query, &list); err != nil {
		return nil, fmt.Errorf("fetching Google Calendar event %s: %w", uid, err)
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	return &list.Items[0], nil
}

// DeleteEvent removes the event from the user's calendar.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	path := "/calendars/" + primaryCalendar + "/events/" + url.PathEscape(eventID)
	if err := c.api.Delete(ctx, path, nil); err != nil {
		return fmt.Errorf("deleting Google Calendar event %s: %w", eventID, err)
	}
	return nil
}
