package github

import (
	"time"

	"github.com/nhle/universal-inbox/internal/model"
)

// Notification is a thread of GET /notifications.
type Notification struct {
	ID              string     `json:"id"`
	Repository      Repository `json:"repository"`
	Subject         Subject    `json:"subject"`
	Reason          string     `json:"reason"`
	Unread          bool       `json:"unread"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastReadAt      *time.Time `json:"last_read_at"`
	URL             string     `json:"url"`
	SubscriptionURL string     `json:"subscription_url"`
}

// Subject is what a notification thread is about.
type Subject struct {
	Title            string  `json:"title"`
	URL              *string `json:"url"`
	LatestCommentURL *string `json:"latest_comment_url"`
	Type             string  `json:"type"`
}

// Repository is the repository summary embedded in notifications.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
	Owner    Owner  `json:"owner"`
}

// Owner is the account owning a repository.
type Owner struct {
	Login string `json:"login"`
}

// ThreadSubscription is the body of PUT /notifications/threads/{id}/subscription.
type ThreadSubscription struct {
	Ignored bool `json:"ignored"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// notificationToModel converts a GitHub notification to the stored payload.
func notificationToModel(n Notification) *model.GithubNotification {
	return &model.GithubNotification{
		ID: n.ID,
		Repository: model.GithubRepositorySummary{
			ID:       n.Repository.ID,
			Name:     n.Repository.Name,
			FullName: n.Repository.FullName,
			HTMLURL:  n.Repository.HTMLURL,
			Private:  n.Repository.Private,
		},
		Subject: model.GithubNotificationSubject{
			Title:            n.Subject.Title,
			URL:              deref(n.Subject.URL),
			LatestCommentURL: deref(n.Subject.LatestCommentURL),
			Type:             n.Subject.Type,
		},
		Reason:          n.Reason,
		Unread:          n.Unread,
		UpdatedAt:       n.UpdatedAt.UTC(),
		LastReadAt:      n.LastReadAt,
		URL:             n.URL,
		SubscriptionURL: n.SubscriptionURL,
	}
}
