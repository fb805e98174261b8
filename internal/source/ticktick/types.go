package ticktick

import "github.com/nhle/universal-inbox/internal/model"

// inboxProjectID addresses the default project, which the project list
// does not include.
const inboxProjectID = "inbox"

// Project is a TickTick list.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Closed bool   `json:"closed,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

func (p Project) summary() model.ProjectSummary {
	return model.ProjectSummary{SourceID: p.ID, Name: p.Name}
}

// ProjectData is a project with its open tasks.
type ProjectData struct {
	Project *Project             `json:"project,omitempty"`
	Tasks   []model.TickTickItem `json:"tasks"`
}

type projectRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}
