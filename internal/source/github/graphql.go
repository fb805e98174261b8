package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
)

const pullRequestQuery = `query PullRequest($owner: String!, $repository: String!, $number: Int!) {
  repository(owner: $owner, name: $repository) {
    pullRequest(number: $number) {
      number
      title
      url
      state
      isDraft
      mergeable
      mergeStateStatus
      reviewDecision
      headRefName
      baseRefName
      additions
      deletions
      changedFiles
      createdAt
      updatedAt
      closedAt
      mergedAt
      author { login }
      labels(first: 20) { nodes { name color } }
    }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pullRequestResponse struct {
	Data *struct {
		Repository *struct {
			PullRequest *PullRequest `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// PullRequest is the pull request node of the GraphQL API.
type PullRequest struct {
	Number           int        `json:"number"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	State            string     `json:"state"`
	IsDraft          bool       `json:"isDraft"`
	Mergeable        string     `json:"mergeable"`
	MergeStateStatus string     `json:"mergeStateStatus"`
	ReviewDecision   *string    `json:"reviewDecision"`
	HeadRefName      string     `json:"headRefName"`
	BaseRefName      string     `json:"baseRefName"`
	Additions        int        `json:"additions"`
	Deletions        int        `json:"deletions"`
	ChangedFiles     int        `json:"changedFiles"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ClosedAt         *time.Time `json:"closedAt"`
	MergedAt         *time.Time `json:"mergedAt"`
	Author           *struct {
		Login string `json:"login"`
	} `json:"author"`
	Labels struct {
		Nodes []struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"nodes"`
	} `json:"labels"`
}

// PullRequestRef identifies a pull request.
type PullRequestRef struct {
	Owner      string
	Repository string
	Number     int
}

// ParsePullRequestURL reads the pull request a REST resource URL such as
// https://api.github.com/repos/octo/repo/pulls/12 points at.
func ParsePullRequestURL(apiURL string) (PullRequestRef, bool) {
	_, path, found := strings.Cut(apiURL, "/repos/")
	if !found {
		return PullRequestRef{}, false
	}
	parts := strings.Split(path, "/")
	if len(parts) != 4 || parts[2] != "pulls" || parts[0] == "" || parts[1] == "" {
		return PullRequestRef{}, false
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return PullRequestRef{}, false
	}
	return PullRequestRef{Owner: parts[0], Repository: parts[1], Number: number}, true
}

// QueryPullRequest fetches a pull request through the GraphQL API.
func (c *Client) QueryPullRequest(ctx context.Context, ref PullRequestRef) (*PullRequest, error) {
	var resp pullRequestResponse
	err := c.api.Post(ctx, "/graphql", graphQLRequest{
		Query: pullRequestQuery,
		Variables: map[string]any{
			"owner":      ref.Owner,
			"repository": ref.Repository,
			"number":     ref.Number,
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("querying GitHub pull request %s/%s#%d: %w", ref.Owner, ref.Repository, ref.Number, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("querying GitHub pull request %s/%s#%d: %w",
			ref.Owner, ref.Repository, ref.Number, graphQLErrors(resp.Errors))
	}
	if resp.Data == nil || resp.Data.Repository == nil || resp.Data.Repository.PullRequest == nil {
		return nil, &source.NotFoundError{
			Provider: model.ProviderGithub,
			Resource: fmt.Sprintf("pull request %s/%s#%d", ref.Owner, ref.Repository, ref.Number),
		}
	}
	return resp.Data.Repository.PullRequest, nil
}

func graphQLErrors(errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Type == "NOT_FOUND" {
			return &source.NotFoundError{Provider: model.ProviderGithub, Resource: e.Message}
		}
		messages = append(messages, e.Message)
	}
	return errors.New(strings.Join(messages, "; "))
}

func pullRequestToModel(pr PullRequest) *model.GithubPullRequest {
	out := &model.GithubPullRequest{
		Number:           pr.Number,
		Title:            pr.Title,
		URL:              pr.URL,
		State:            model.GithubPullRequestState(pr.State),
		IsDraft:          pr.IsDraft,
		Mergeable:        pr.Mergeable,
		MergeStateStatus: pr.MergeStateStatus,
		ReviewDecision:   deref(pr.ReviewDecision),
		HeadRefName:      pr.HeadRefName,
		BaseRefName:      pr.BaseRefName,
		Additions:        pr.Additions,
		Deletions:        pr.Deletions,
		ChangedFiles:     pr.ChangedFiles,
		CreatedAt:        pr.CreatedAt.UTC(),
		UpdatedAt:        pr.UpdatedAt.UTC(),
		ClosedAt:         pr.ClosedAt,
		MergedAt:         pr.MergedAt,
	}
	if pr.Author != nil {
		out.Author = pr.Author.Login
	}
	for _, l := range pr.Labels.Nodes {
		out.Labels = append(out.Labels, model.GithubLabel{Name: l.Name, Color: l.Color})
	}
	return out
}
