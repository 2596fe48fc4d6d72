package models

import (
	"strings"
	"time"
)

// ScheduledPost is one pending publication. Entries are never edited in
// place: they are removed on success and left untouched (with a new alarm)
// on failure.
type ScheduledPost struct {
	ID       string            `json:"id"`
	When     int64             `json:"when"` // epoch millis
	Text     string            `json:"text"`
	MediaRaw []MediaAttachment `json:"mediaRaw"`
}

func (p *ScheduledPost) Time() time.Time {
	return time.UnixMilli(p.When)
}

// MediaAttachment holds an already compressed media file. Payload is a
// base64 data URL, or a staged object reference when media staging is on.
type MediaAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	AltText  string `json:"alt"`
	Payload  string `json:"dataUrl"`
}

type MediaClass string

const (
	MediaImage   MediaClass = "image"
	MediaVideo   MediaClass = "video"
	MediaUnknown MediaClass = "unknown"
)

func MediaClassOf(mimeType string) MediaClass {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo
	}
	return MediaUnknown
}

// PostQueueItem is the debug view of a queue entry.
type PostQueueItem struct {
	ID             string `json:"id"`
	When           string `json:"when"`
	Timestamp      int64  `json:"timestamp"`
	Text           string `json:"text"`
	MediaCount     int    `json:"mediaCount"`
	MinutesFromNow int64  `json:"minutesFromNow"`
	IsPast         bool   `json:"isPast"`
}

type AlarmInfo struct {
	EntryID        string `json:"entryId"`
	Handle         string `json:"handle"`
	ScheduledTime  string `json:"scheduledTime"`
	Timestamp      int64  `json:"timestamp"`
	MinutesFromNow int64  `json:"minutesFromNow"`
	IsPast         bool   `json:"isPast"`
}

type QueueDebug struct {
	CurrentTime string          `json:"currentTime"`
	Timestamp   int64           `json:"timestamp"`
	Alarms      []AlarmInfo     `json:"alarms"`
	Queue       []PostQueueItem `json:"queue"`
}
