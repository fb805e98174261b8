package ticktick

import (
	"context"
	"fmt"
	"net/url"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

// Client talks to the TickTick Open API.
type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// ListProjects returns the open projects, the inbox excluded.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.api.Get(ctx, "/project", nil, &projects); err != nil {
		return nil, fmt.Errorf("listing ticktick projects: %w", err)
	}
	open := projects[:0]
	for _, p := range projects {
		if !p.Closed {
			open = append(open, p)
		}
	}
	return open, nil
}

// ProjectTasks returns the open tasks of a project.
func (c *Client) ProjectTasks(ctx context.Context, projectID string) ([]model.TickTickItem, error) {
	var data ProjectData
	if err := c.api.Get(ctx, "/project/"+url.PathEscape(projectID)+"/data", nil, &data); err != nil {
		return nil, fmt.Errorf("getting ticktick project %s: %w", projectID, err)
	}
	return data.Tasks, nil
}

func (c *Client) CreateProject(ctx context.Context, name string) (Project, error) {
	var p Project
	if err := c.api.Post(ctx, "/project", projectRequest{Name: name, Kind: "TASK"}, &p); err != nil {
		return Project{}, fmt.Errorf("creating ticktick project %q: %w", name, err)
	}
	return p, nil
}

func (c *Client) CreateTask(ctx context.Context, task model.TickTickItem) (*model.TickTickItem, error) {
	var created model.TickTickItem
	if err := c.api.Post(ctx, "/task", task, &created); err != nil {
		return nil, fmt.Errorf("creating ticktick task: %w", err)
	}
	return &created, nil
}

func (c *Client) UpdateTask(ctx context.Context, task model.TickTickItem) error {
	if err := c.api.Post(ctx, "/task/"+url.PathEscape(task.ID), task, nil); err != nil {
		return fmt.Errorf("updating ticktick task %s: %w", task.ID, err)
	}
	return nil
}

func taskPath(projectID, taskID string) string {
	return "/project/" + url.PathEscape(projectID) + "/task/" + url.PathEscape(taskID)
}

func (c *Client) CompleteTask(ctx context.Context, projectID, taskID string) error {
	if err := c.api.Post(ctx, taskPath(projectID, taskID)+"/complete", nil, nil); err != nil {
		return fmt.Errorf("completing ticktick task %s: %w", taskID, err)
	}
	return nil
}

func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if err := c.api.Delete(ctx, taskPath(projectID, taskID), nil); err != nil {
		return fmt.Errorf("deleting ticktick task %s: %w", taskID, err)
	}
	return nil
}
