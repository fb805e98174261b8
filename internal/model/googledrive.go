package model

import (
	"strings"
	"time"
)

// GoogleDriveCommentAuthor is the author of a comment or a reply. The
// email address is often withheld by the Drive API.
type GoogleDriveCommentAuthor struct {
	DisplayName  string `json:"display_name"`
	EmailAddress string `json:"email_address,omitempty"`
	PhotoLink    string `json:"photo_link,omitempty"`
}

// is reports whether the author is the given user. Display names are a
// weak fallback for when the email is missing.
func (a GoogleDriveCommentAuthor) is(email, displayName string) bool {
	if a.EmailAddress != "" && email != "" && a.EmailAddress == email {
		return true
	}
	return displayName != "" && a.DisplayName == displayName
}

// GoogleDriveCommentReply is one reply in a comment discussion.
type GoogleDriveCommentReply struct {
	ID           string                   `json:"id"`
	Content      string                   `json:"content"`
	HTMLContent  string                   `json:"html_content,omitempty"`
	Author       GoogleDriveCommentAuthor `json:"author"`
	CreatedTime  time.Time                `json:"created_time"`
	ModifiedTime time.Time                `json:"modified_time"`
}

// GoogleDriveComment is a discussion anchored on a Drive document.
type GoogleDriveComment struct {
	ID                string                    `json:"id"`
	FileID            string                    `json:"file_id"`
	FileName          string                    `json:"file_name"`
	FileMimeType      string                    `json:"file_mime_type"`
	Content           string                    `json:"content"`
	HTMLContent       string                    `json:"html_content,omitempty"`
	QuotedFileContent string                    `json:"quoted_file_content,omitempty"`
	Author            GoogleDriveCommentAuthor  `json:"author"`
	CreatedTime       time.Time                 `json:"created_time"`
	ModifiedTime      time.Time                 `json:"modified_time"`
	Resolved          bool                      `json:"resolved,omitempty"`
	Replies           []GoogleDriveCommentReply `json:"replies"`

	// UserEmailAddress and UserDisplayName identify the connection's user
	// for authorship checks.
	UserEmailAddress string `json:"user_email_address,omitempty"`
	UserDisplayName  string `json:"user_display_name,omitempty"`
}

func (c *GoogleDriveComment) ItemKind() ThirdPartyItemKind { return KindGoogleDriveComment }

func (c *GoogleDriveComment) HTMLURL() string {
	base := "file"
	switch c.FileMimeType {
	case "application/vnd.google-apps.document":
		base = "document"
	case "application/vnd.google-apps.spreadsheet":
		base = "spreadsheets"
	case "application/vnd.google-apps.presentation":
		base = "presentation"
	}
	return "https://docs.google.com/" + base + "/d/" + c.FileID + "/edit?disco=" + c.ID
}

// SourceID combines the file and the comment identifiers.
func (c *GoogleDriveComment) SourceID() string {
	return c.FileID + "#" + c.ID
}

// Title names the document the comment belongs to.
func (c *GoogleDriveComment) Title() string {
	return "Comment on " + c.FileName
}

// IsLastReplyFromUser reports whether the user wrote the latest reply.
func (c *GoogleDriveComment) IsLastReplyFromUser() bool {
	if c.UserEmailAddress == "" || c.UserDisplayName == "" || len(c.Replies) == 0 {
		return false
	}
	return c.Replies[len(c.Replies)-1].Author.is(c.UserEmailAddress, c.UserDisplayName)
}

// IsUserMentioned reports whether the discussion calls for the user's
// attention since after (nil means since the beginning): the user is
// mentioned in new content, or got replies on a comment they started.
// It is false when the user wrote the latest reply.
func (c *GoogleDriveComment) IsUserMentioned(displayName, email string, after *time.Time) bool {
	if len(c.Replies) > 0 && c.Replies[len(c.Replies)-1].Author.is(email, displayName) {
		return false
	}

	isNew := after == nil || c.ModifiedTime.After(*after)
	if isNew && c.Author.is(email, displayName) {
		return len(c.Replies) > 0
	}
	if isNew && email != "" && strings.Contains(c.Content, email) {
		return true
	}

	for _, reply := range c.Replies {
		replyIsNew := after == nil || reply.ModifiedTime.After(*after)
		if !replyIsNew {
			continue
		}
		if reply.Author.is(email, displayName) {
			return true
		}
		if email != "" && strings.Contains(reply.Content, email) {
			return true
		}
	}
	return false
}
