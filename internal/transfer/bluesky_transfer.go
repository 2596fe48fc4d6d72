package transfer

import "encoding/json"

type CreateSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type UploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

type CreateRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     PostRecord `json:"record"`
}

type PostRecord struct {
	Type      string `json:"$type"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	Embed     any    `json:"embed,omitempty"`
}

type VideoEmbed struct {
	Type  string          `json:"$type"`
	Video json.RawMessage `json:"video"`
	Alt   string          `json:"alt"`
}

type ImagesEmbed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}

type EmbedImage struct {
	Image json.RawMessage `json:"image"`
	Alt   string          `json:"alt"`
}
