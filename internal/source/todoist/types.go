package todoist

import (
	"encoding/json"

	"github.com/nhle/universal-inbox/internal/model"
)

// Project is a Todoist project.
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	InboxProject bool   `json:"inbox_project,omitempty"`
	IsArchived   bool   `json:"is_archived,omitempty"`
	IsDeleted    bool   `json:"is_deleted,omitempty"`
}

func (p Project) summary() model.ProjectSummary {
	return model.ProjectSummary{SourceID: p.ID, Name: p.Name}
}

// SyncResponse is the answer to a read request on the sync endpoint.
type SyncResponse struct {
	SyncToken string              `json:"sync_token"`
	FullSync  bool                `json:"full_sync"`
	Items     []model.TodoistItem `json:"items,omitempty"`
	Projects  []Project           `json:"projects,omitempty"`
}

// Command is one write of a sync batch.
type Command struct {
	Type   string         `json:"type"`
	UUID   string         `json:"uuid"`
	TempID string         `json:"temp_id,omitempty"`
	Args   map[string]any `json:"args"`
}

// CommandResponse is the answer to a write batch. Each sync_status value
// is either the string "ok" or an error object.
type CommandResponse struct {
	SyncStatus    map[string]json.RawMessage `json:"sync_status"`
	TempIDMapping map[string]string          `json:"temp_id_mapping,omitempty"`
}

type commandError struct {
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

type itemResponse struct {
	Item model.TodoistItem `json:"item"`
}

func dueArgs(due *model.DueDate) map[string]any {
	if due == nil {
		return nil
	}
	return map[string]any{"date": due.String()}
}
