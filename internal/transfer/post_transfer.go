package transfer

import "github.com/maheshrc27/skyqueue/internal/models"

// MediaUpload is one raw file handed over by the client, before compression.
type MediaUpload struct {
	Name     string
	MimeType string
	AltText  string
	Data     []byte
}

type ScheduleResult struct {
	Created int `json:"created"`
}

type PostNowResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type ClearResult struct {
	Cleared int `json:"cleared"`
}

type TestAlarmResult struct {
	TestID       string `json:"testId"`
	ScheduledFor string `json:"scheduledFor"`
}

type UploadedMedia struct {
	Blobs []models.BlobRef `json:"blobs"`
}
