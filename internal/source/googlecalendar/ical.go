package googlecalendar

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nhle/universal-inbox/internal/model"
)

const calendarMimeType = "text/calendar"

// InvitationUID returns the iCalendar UID of the most recent invitation
// attached to the thread.
func InvitationUID(thread *model.GoogleMailThread) (string, bool) {
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		part, ok := thread.Messages[i].PartOfType(calendarMimeType)
		if !ok || part.Body == nil || part.Body.Data == "" {
			continue
		}
		raw, err := decodePartData(part.Body.Data)
		if err != nil {
			continue
		}
		if uid, ok := parseUID(raw); ok {
			return uid, true
		}
	}
	return "", false
}

// decodePartData decodes base64url MIME part data, padded or not.
func decodePartData(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("decoding calendar part: %w", err)
	}
	return string(b), nil
}

// parseUID reads the UID property of the first VEVENT, unfolding
// continuation lines.
func parseUID(ics string) (string, bool) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(ics))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}

	inEvent := false
	for _, line := range lines {
		switch {
		case strings.EqualFold(line, "BEGIN:VEVENT"):
			inEvent = true
		case strings.EqualFold(line, "END:VEVENT"):
			inEvent = false
		case inEvent:
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			name, _, _ = strings.Cut(name, ";")
			if strings.EqualFold(name, "UID") && value != "" {
				return value, true
			}
		}
	}
	return "", false
}
