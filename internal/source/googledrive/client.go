package googledrive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/universal-inbox/internal/source/apiclient"
)

const (
	fileFields    = "files(id,name,modifiedTime,mimeType),nextPageToken,incompleteSearch"
	commentFields = "comments(id,content,htmlContent,quotedFileContent,author,createdTime,modifiedTime,resolved,replies),nextPageToken"
)

// Client is a thin client for the Google Drive REST API.
type Client struct {
	api *apiclient.Client
}

// NewClient wraps an authenticated API client.
func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) GetUser(ctx context.Context) (User, error) {
	var a about
	query := url.Values{"fields": {"user(emailAddress,displayName)"}}
	if err := c.api.Get(ctx, "/about", query, &a); err != nil {
		return User{}, fmt.Errorf("fetching Google Drive user: %w", err)
	}
	return a.User, nil
}

// ListFilesModifiedSince returns every file of every drive modified
// strictly after since.
func (c *Client) ListFilesModifiedSince(ctx context.Context, since time.Time, pageSize int) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		query := url.Values{
			"includeItemsFromAllDrives": {"true"},
			"supportsAllDrives":         {"true"},
			"fields":                    {fileFields},
			"pageSize":                  {strconv.Itoa(pageSize)},
			"q":                         {fmt.Sprintf("modifiedTime > '%s'", since.UTC().Format(time.RFC3339))},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var list fileList
		if err := c.api.Get(ctx, "/files", query, &list); err != nil {
			return nil, fmt.Errorf("listing Google Drive files: %w", err)
		}
		files = append(files, list.Files...)
		if list.NextPageToken == "" {
			return files, nil
		}
		pageToken = list.NextPageToken
	}
}

// ListComments returns every comment of a file.
func (c *Client) ListComments(ctx context.Context, fileID string, pageSize int) ([]Comment, error) {
	var comments []Comment
	pageToken := ""
	for {
		query := url.Values{
			"fields":   {commentFields},
			"pageSize": {strconv.Itoa(pageSize)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var list commentList
		path := "/files/" + url.PathEscape(fileID) + "/comments"
		if err := c.api.Get(ctx, path, query, &list); err != nil {
			return nil, fmt.Errorf("listing comments of Google Drive file %s: %w", fileID, err)
		}
		comments = append(comments, list.Comments...)
		if list.NextPageToken == "" {
			return comments, nil
		}
		pageToken = list.NextPageToken
	}
}
