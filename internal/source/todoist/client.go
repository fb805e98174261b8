package todoist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

// fullSyncToken asks the sync endpoint for every resource.
const fullSyncToken = "*"

const (
	errItemNotFound    = 22
	errProjectNotFound = 21
)

// Client talks to the Todoist Sync API.
type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) read(ctx context.Context, syncToken string, resources ...string) (*SyncResponse, error) {
	types, err := json.Marshal(resources)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"sync_token":     {syncToken},
		"resource_types": {string(types)},
	}
	var resp SyncResponse
	if err := c.api.PostForm(ctx, "/sync", form, &resp); err != nil {
		return nil, fmt.Errorf("syncing todoist %s: %w", strings.Join(resources, ","), err)
	}
	return &resp, nil
}

// SyncItems returns the items changed since syncToken, all of them when
// syncToken is empty, together with the next token.
func (c *Client) SyncItems(ctx context.Context, syncToken string) ([]model.TodoistItem, string, error) {
	if syncToken == "" {
		syncToken = fullSyncToken
	}
	resp, err := c.read(ctx, syncToken, "items")
	if err != nil {
		return nil, "", err
	}
	return resp.Items, resp.SyncToken, nil
}

// ListProjects returns the active projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	resp, err := c.read(ctx, fullSyncToken, "projects")
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(resp.Projects))
	for _, p := range resp.Projects {
		if p.IsArchived || p.IsDeleted {
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// GetItem fetches a single item.
func (c *Client) GetItem(ctx context.Context, id string) (*model.TodoistItem, error) {
	var resp itemResponse
	form := url.Values{"item_id": {id}}
	if err := c.api.PostForm(ctx, "/items/get", form, &resp); err != nil {
		return nil, fmt.Errorf("getting todoist item %s: %w", id, err)
	}
	return &resp.Item, nil
}

func newCommand(kind string, args map[string]any) Command {
	return Command{Type: kind, UUID: uuid.NewString(), Args: args}
}

// Execute sends a command batch and fails on the first rejected command.
func (c *Client) Execute(ctx context.Context, commands ...Command) (*CommandResponse, error) {
	raw, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("encoding todoist commands: %w", err)
	}
	var resp CommandResponse
	if err := c.api.PostForm(ctx, "/sync", url.Values{"commands": {string(raw)}}, &resp); err != nil {
		return nil, fmt.Errorf("sending todoist commands: %w", err)
	}
	for _, cmd := range commands {
		if err := commandStatus(cmd, resp.SyncStatus[cmd.UUID]); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

func commandStatus(cmd Command, status json.RawMessage) error {
	if len(status) == 0 {
		return fmt.Errorf("todoist command %s: no status returned", cmd.Type)
	}
	var ok string
	if json.Unmarshal(status, &ok) == nil {
		if ok == "ok" {
			return nil
		}
		return fmt.Errorf("todoist command %s: %s", cmd.Type, ok)
	}
	var failure commandError
	if err := json.Unmarshal(status, &failure); err != nil {
		return fmt.Errorf("todoist command %s: decoding status: %w", cmd.Type, err)
	}
	switch failure.ErrorCode {
	case errItemNotFound, errProjectNotFound:
		return &source.NotFoundError{Provider: model.ProviderTodoist, Resource: fmt.Sprintf("%v", cmd.Args["id"])}
	}
	return fmt.Errorf("todoist command %s failed (%d): %s", cmd.Type, failure.ErrorCode, failure.Error)
}

// AddItem creates an item and returns its id.
func (c *Client) AddItem(ctx context.Context, args map[string]any) (string, error) {
	cmd := newCommand("item_add", args)
	cmd.TempID = uuid.NewString()
	resp, err := c.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	id, ok := resp.TempIDMapping[cmd.TempID]
	if !ok {
		return "", fmt.Errorf("todoist item_add: no id returned")
	}
	return id, nil
}

// AddProject creates a project and returns it.
func (c *Client) AddProject(ctx context.Context, name string) (Project, error) {
	cmd := newCommand("project_add", map[string]any{"name": name})
	cmd.TempID = uuid.NewString()
	resp, err := c.Execute(ctx, cmd)
	if err != nil {
		return Project{}, err
	}
	id, ok := resp.TempIDMapping[cmd.TempID]
	if !ok {
		return Project{}, fmt.Errorf("todoist project_add %q: no id returned", name)
	}
	return Project{ID: id, Name: name}, nil
}

func (c *Client) itemCommand(ctx context.Context, kind, id string) error {
	_, err := c.Execute(ctx, newCommand(kind, map[string]any{"id": id}))
	return err
}

func (c *Client) CloseItem(ctx context.Context, id string) error {
	return c.itemCommand(ctx, "item_close", id)
}

func (c *Client) UncompleteItem(ctx context.Context, id string) error {
	return c.itemCommand(ctx, "item_uncomplete", id)
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.itemCommand(ctx, "item_delete", id)
}

// UpdateItem sends an item_update, plus an item_move when projectID is
// set, in a single batch.
func (c *Client) UpdateItem(ctx context.Context, id string, args map[string]any, projectID string) error {
	var commands []Command
	if len(args) > 0 {
		args["id"] = id
		commands = append(commands, newCommand("item_update", args))
	}
	if projectID != "" {
		commands = append(commands, newCommand("item_move", map[string]any{"id": id, "project_id": projectID}))
	}
	if len(commands) == 0 {
		return nil
	}
	_, err := c.Execute(ctx, commands...)
	return err
}
