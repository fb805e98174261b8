package googlemail

import "github.com/nhle/universal-inbox/internal/model"

// Profile is the authenticated mailbox.
type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int64  `json:"messagesTotal"`
	ThreadsTotal  int64  `json:"threadsTotal"`
	HistoryID     string `json:"historyId"`
}

// Label is a label as listed by the API.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type labelList struct {
	Labels []Label `json:"labels"`
}

// ThreadSummary is one entry of threads.list.
type ThreadSummary struct {
	ID        string `json:"id"`
	Snippet   string `json:"snippet"`
	HistoryID string `json:"historyId"`
}

type threadList struct {
	Threads            []ThreadSummary `json:"threads"`
	ResultSizeEstimate int             `json:"resultSizeEstimate"`
	NextPageToken      string          `json:"nextPageToken,omitempty"`
}

// Thread is a full thread as returned by threads.get.
type Thread struct {
	ID        string                    `json:"id"`
	HistoryID string                    `json:"historyId"`
	Messages  []model.GoogleMailMessage `json:"messages"`
}

type modifyRequest struct {
	AddLabelIDs    []string `json:"addLabelIds"`
	RemoveLabelIDs []string `json:"removeLabelIds"`
}

func labelsToModel(labels []Label) []model.GoogleMailLabel {
	out := make([]model.GoogleMailLabel, 0, len(labels))
	for _, l := range labels {
		out = append(out, model.GoogleMailLabel{ID: l.ID, Name: l.Name})
	}
	return out
}

func threadToModel(t Thread, userEmail string) *model.GoogleMailThread {
	return &model.GoogleMailThread{
		ID:               t.ID,
		UserEmailAddress: userEmail,
		HistoryID:        t.HistoryID,
		Messages:         t.Messages,
	}
}
