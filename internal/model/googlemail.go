package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Google Mail system labels the sync relies on.
const (
	GoogleMailUnreadLabel    = "UNREAD"
	GoogleMailInboxLabel     = "INBOX"
	GoogleMailStarredLabel   = "STARRED"
	GoogleMailImportantLabel = "IMPORTANT"
)

const (
	defaultGoogleMailHTMLURL = "https://mail.google.com"
	defaultGoogleMailSubject = "No subject"
)

// MillisTime is a timestamp encoded as a string of epoch milliseconds,
// the format Google Mail uses for internalDate.
type MillisTime struct {
	time.Time
}

func (t MillisTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(t.UnixMilli(), 10))
}

func (t *MillisTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decoding millisecond timestamp: %w", err)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing millisecond timestamp %q: %w", s, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// GoogleMailLabel is a Gmail label, system or user defined.
type GoogleMailLabel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GoogleMailHeader is one RFC 5322 header as returned by the Gmail API.
type GoogleMailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GoogleMailPartBody is the content of a MIME part. Data is base64url
// encoded and only inlined for small parts; larger ones must be fetched
// by AttachmentID.
type GoogleMailPartBody struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int    `json:"size"`
	Data         string `json:"data,omitempty"`
}

// GoogleMailMessagePart describes a MIME part of a message.
type GoogleMailMessagePart struct {
	PartID   string                  `json:"partId,omitempty"`
	MimeType string                  `json:"mimeType"`
	Filename string                  `json:"filename,omitempty"`
	Headers  []GoogleMailHeader      `json:"headers,omitempty"`
	Body     *GoogleMailPartBody     `json:"body,omitempty"`
	Parts    []GoogleMailMessagePart `json:"parts,omitempty"`
}

// GoogleMailMessagePayload is the top-level MIME structure of a message.
type GoogleMailMessagePayload struct {
	MimeType string                  `json:"mimeType"`
	Headers  []GoogleMailHeader      `json:"headers"`
	Body     *GoogleMailPartBody     `json:"body,omitempty"`
	Parts    []GoogleMailMessagePart `json:"parts,omitempty"`
}

// GoogleMailMessage is one message of a thread.
type GoogleMailMessage struct {
	ID           string                   `json:"id"`
	ThreadID     string                   `json:"threadId"`
	LabelIDs     []string                 `json:"labelIds,omitempty"`
	Snippet      string                   `json:"snippet"`
	Payload      GoogleMailMessagePayload `json:"payload"`
	SizeEstimate int                      `json:"sizeEstimate"`
	HistoryID    string                   `json:"historyId"`
	InternalDate MillisTime               `json:"internalDate"`
}

// Header returns the first header with the given name.
func (m GoogleMailMessage) Header(name string) (string, bool) {
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// IsTaggedWith reports whether the message carries the label.
func (m GoogleMailMessage) IsTaggedWith(labelID string) bool {
	return slices.Contains(m.LabelIDs, labelID)
}

// HasPartOfType reports whether any MIME part has the given type.
func (m GoogleMailMessage) HasPartOfType(mimeType string) bool {
	_, ok := m.PartOfType(mimeType)
	return ok
}

// PartOfType returns the first MIME part with the given type, depth first.
func (m GoogleMailMessage) PartOfType(mimeType string) (GoogleMailMessagePart, bool) {
	if m.Payload.MimeType == mimeType {
		return GoogleMailMessagePart{
			MimeType: m.Payload.MimeType,
			Headers:  m.Payload.Headers,
			Body:     m.Payload.Body,
		}, true
	}
	var walk func(parts []GoogleMailMessagePart) (GoogleMailMessagePart, bool)
	walk = func(parts []GoogleMailMessagePart) (GoogleMailMessagePart, bool) {
		for _, p := range parts {
			if p.MimeType == mimeType {
				return p, true
			}
			if found, ok := walk(p.Parts); ok {
				return found, true
			}
		}
		return GoogleMailMessagePart{}, false
	}
	return walk(m.Payload.Parts)
}

// GoogleMailThread is a Gmail conversation with all of its messages,
// oldest first.
type GoogleMailThread struct {
	ID               string              `json:"id"`
	UserEmailAddress string              `json:"user_email_address"`
	HistoryID        string              `json:"historyId"`
	Messages         []GoogleMailMessage `json:"messages"`
}

func (t *GoogleMailThread) ItemKind() ThirdPartyItemKind { return KindGoogleMailThread }

func (t *GoogleMailThread) HTMLURL() string {
	if t.UserEmailAddress == "" {
		return defaultGoogleMailHTMLURL
	}
	return defaultGoogleMailHTMLURL + "/mail/u/" + t.UserEmailAddress + "/#inbox/" + t.ID
}

// Subject returns the first message's subject.
func (t *GoogleMailThread) Subject() string {
	if len(t.Messages) == 0 {
		return defaultGoogleMailSubject
	}
	if subject, ok := t.Messages[0].Header("Subject"); ok && subject != "" {
		return subject
	}
	return defaultGoogleMailSubject
}

// LastMessage returns the most recent message, if any.
func (t *GoogleMailThread) LastMessage() (GoogleMailMessage, bool) {
	if len(t.Messages) == 0 {
		return GoogleMailMessage{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// IsTaggedWith reports whether any message of the thread carries the label.
func (t *GoogleMailThread) IsTaggedWith(labelID string) bool {
	for _, m := range t.Messages {
		if m.IsTaggedWith(labelID) {
			return true
		}
	}
	return false
}

// FirstUnreadIndex returns the index of the first UNREAD message or -1.
func (t *GoogleMailThread) FirstUnreadIndex() int {
	for i, m := range t.Messages {
		if m.IsTaggedWith(GoogleMailUnreadLabel) {
			return i
		}
	}
	return -1
}

// RemoveLabels strips the labels from every message of the thread.
func (t *GoogleMailThread) RemoveLabels(labels ...string) {
	for i := range t.Messages {
		t.Messages[i].LabelIDs = slices.DeleteFunc(
			slices.Clone(t.Messages[i].LabelIDs),
			func(label string) bool { return slices.Contains(labels, label) },
		)
	}
}
