package googledrive

import (
	"time"

	"github.com/nhle/universal-inbox/internal/model"
)

// File is the part of a Drive file the sync needs.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type fileList struct {
	Files            []File `json:"files"`
	NextPageToken    string `json:"nextPageToken,omitempty"`
	IncompleteSearch bool   `json:"incompleteSearch,omitempty"`
}

type Author struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	PhotoLink    string `json:"photoLink,omitempty"`
}

type QuotedFileContent struct {
	MimeType string `json:"mimeType"`
	Value    string `json:"value"`
}

type Reply struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	HTMLContent  string    `json:"htmlContent,omitempty"`
	Author       Author    `json:"author"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Comment is a comment as returned by comments.list.
type Comment struct {
	ID                string             `json:"id"`
	Content           string             `json:"content"`
	HTMLContent       string             `json:"htmlContent,omitempty"`
	QuotedFileContent *QuotedFileContent `json:"quotedFileContent,omitempty"`
	Author            Author             `json:"author"`
	CreatedTime       time.Time          `json:"createdTime"`
	ModifiedTime      time.Time          `json:"modifiedTime"`
	Resolved          bool               `json:"resolved,omitempty"`
	Replies           []Reply            `json:"replies,omitempty"`
}

type commentList struct {
	Comments      []Comment `json:"comments"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// User is the authenticated Drive user.
type User struct {
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

type about struct {
	User User `json:"user"`
}

func authorToModel(a Author) model.GoogleDriveCommentAuthor {
	return model.GoogleDriveCommentAuthor{
		DisplayName:  a.DisplayName,
		EmailAddress: a.EmailAddress,
		PhotoLink:    a.PhotoLink,
	}
}

// commentToModel attaches the file and the user identity to a comment.
func commentToModel(c Comment, file File, user User) *model.GoogleDriveComment {
	comment := &model.GoogleDriveComment{
		ID:               c.ID,
		FileID:           file.ID,
		FileName:         file.Name,
		FileMimeType:     file.MimeType,
		Content:          c.Content,
		HTMLContent:      c.HTMLContent,
		Author:           authorToModel(c.Author),
		CreatedTime:      c.CreatedTime,
		ModifiedTime:     c.ModifiedTime,
		Resolved:         c.Resolved,
		Replies:          make([]model.GoogleDriveCommentReply, 0, len(c.Replies)),
		UserEmailAddress: user.EmailAddress,
		UserDisplayName:  user.DisplayName,
	}
	if c.QuotedFileContent != nil {
		comment.QuotedFileContent = c.QuotedFileContent.Value
	}
	for _, r := range c.Replies {
		comment.Replies = append(comment.Replies, model.GoogleDriveCommentReply{
			ID:           r.ID,
			Content:      r.Content,
			HTMLContent:  r.HTMLContent,
			Author:       authorToModel(r.Author),
			CreatedTime:  r.CreatedTime,
			ModifiedTime: r.ModifiedTime,
		})
	}
	return comment
}
