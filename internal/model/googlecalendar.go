package model

import "time"

// Attendee response statuses as reported by the Google Calendar API.
const (
	CalendarResponseNeedsAction = "needsAction"
	CalendarResponseDeclined    = "declined"
	CalendarResponseTentative   = "tentative"
	CalendarResponseAccepted    = "accepted"
)

const defaultGoogleCalendarHTMLURL = "https://calendar.google.com"

// GoogleCalendarEventTime is either an all-day date or a date-time.
type GoogleCalendarEventTime struct {
	Date     string     `json:"date,omitempty"`
	DateTime *time.Time `json:"dateTime,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

// GoogleCalendarPerson is an organizer or creator.
type GoogleCalendarPerson struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Self        bool   `json:"self,omitempty"`
}

// GoogleCalendarAttendee is one invitee with their answer.
type GoogleCalendarAttendee struct {
	Email          string `json:"email,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
	Self           bool   `json:"self,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
	Optional       bool   `json:"optional,omitempty"`
	ResponseStatus string `json:"responseStatus"`
}

// GoogleCalendarEvent is an event the user was invited to.
type GoogleCalendarEvent struct {
	ID          string                   `json:"id"`
	ICalUID     string                   `json:"iCalUID"`
	Status      string                   `json:"status"`
	Summary     string                   `json:"summary"`
	Description string                   `json:"description,omitempty"`
	Location    string                   `json:"location,omitempty"`
	HTMLLink    string                   `json:"htmlLink"`
	Start       GoogleCalendarEventTime  `json:"start"`
	End         GoogleCalendarEventTime  `json:"end"`
	Organizer   GoogleCalendarPerson     `json:"organizer"`
	Attendees   []GoogleCalendarAttendee `json:"attendees,omitempty"`
	Created     time.Time                `json:"created"`
	Updated     time.Time                `json:"updated"`
}

func (e *GoogleCalendarEvent) ItemKind() ThirdPartyItemKind { return KindGoogleCalendarEvent }

func (e *GoogleCalendarEvent) HTMLURL() string {
	if e.HTMLLink != "" {
		return e.HTMLLink
	}
	return defaultGoogleCalendarHTMLURL
}

// SelfResponse returns the authenticated user's answer, "" when the user
// is not listed as an attendee.
func (e *GoogleCalendarEvent) SelfResponse() string {
	for _, a := range e.Attendees {
		if a.Self {
			return a.ResponseStatus
		}
	}
	return ""
}
