package model

import (
	"strings"
	"time"
)

const defaultGithubHTMLURL = "https://github.com"

// GithubNotification is one thread of the authenticated user's GitHub
// notification inbox.
type GithubNotification struct {
	ID              string                    `json:"id"`
	Repository      GithubRepositorySummary   `json:"repository"`
	Subject         GithubNotificationSubject `json:"subject"`
	Reason          string                    `json:"reason"`
	Unread          bool                      `json:"unread"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	LastReadAt      *time.Time                `json:"last_read_at"`
	URL             string                    `json:"url"`
	SubscriptionURL string                    `json:"subscription_url"`

	// PullRequest holds the details of the pull request a PullRequest
	// subject points at, when they could be fetched.
	PullRequest *GithubPullRequest `json:"pull_request,omitempty"`
}

type GithubPullRequestState string

const (
	GithubPullRequestOpen   GithubPullRequestState = "OPEN"
	GithubPullRequestClosed GithubPullRequestState = "CLOSED"
	GithubPullRequestMerged GithubPullRequestState = "MERGED"
)

// GithubPullRequest is the state of a pull request at sync time.
type GithubPullRequest struct {
	Number           int                    `json:"number"`
	Title            string                 `json:"title"`
	URL              string                 `json:"url"`
	State            GithubPullRequestState `json:"state"`
	IsDraft          bool                   `json:"is_draft"`
	Mergeable        string                 `json:"mergeable"`
	MergeStateStatus string                 `json:"merge_state_status"`
	ReviewDecision   string                 `json:"review_decision,omitempty"`
	HeadRefName      string                 `json:"head_ref_name"`
	BaseRefName      string                 `json:"base_ref_name"`
	Additions        int                    `json:"additions"`
	Deletions        int                    `json:"deletions"`
	ChangedFiles     int                    `json:"changed_files"`
	Author           string                 `json:"author,omitempty"`
	Labels           []GithubLabel          `json:"labels,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	ClosedAt         *time.Time             `json:"closed_at,omitempty"`
	MergedAt         *time.Time             `json:"merged_at,omitempty"`
}

type GithubLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// GithubNotificationSubject is the issue, pull request or release a
// notification thread is about.
type GithubNotificationSubject struct {
	Title            string `json:"title"`
	URL              string `json:"url,omitempty"`
	LatestCommentURL string `json:"latest_comment_url,omitempty"`
	Type             string `json:"type"`
}

// GithubRepositorySummary holds the repository fields a notification needs.
type GithubRepositorySummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
}

func (n *GithubNotification) ItemKind() ThirdPartyItemKind { return KindGithubNotification }

func (n *GithubNotification) HTMLURL() string {
	if url := GithubHTMLURLFromAPIURL(n.Subject.URL); url != "" {
		return url
	}
	if n.Repository.HTMLURL != "" {
		return n.Repository.HTMLURL
	}
	return defaultGithubHTMLURL
}

// GithubHTMLURLFromAPIURL turns an api.github.com resource URL into the
// matching github.com page. Unknown shapes return "".
func GithubHTMLURLFromAPIURL(apiURL string) string {
	const prefix = "https://api.github.com/repos/"
	if !strings.HasPrefix(apiURL, prefix) {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(apiURL, prefix), "/")
	if len(parts) < 2 {
		return ""
	}
	base := defaultGithubHTMLURL + "/" + parts[0] + "/" + parts[1]
	if len(parts) < 4 {
		return base
	}
	switch parts[2] {
	case "pulls":
		return base + "/pull/" + parts[3]
	case "issues":
		return base + "/issues/" + parts[3]
	case "commits":
		return base + "/commit/" + parts[3]
	case "releases":
		return base + "/releases"
	}
	return base
}
