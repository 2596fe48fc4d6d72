package models

import "encoding/json"

// Session is the authenticated state against one service endpoint.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Service    string `json:"-"`
}

type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (c *Credentials) Complete() bool {
	return c != nil && c.Identifier != "" && c.Password != ""
}

type Options struct {
	Service string `json:"service"`
	Notify  bool   `json:"notify"`
}

// BlobRef is an uploaded blob ready to be referenced by a post record.
// Blob is kept verbatim as returned by uploadBlob.
type BlobRef struct {
	Blob     json.RawMessage `json:"blob"`
	MimeType string          `json:"type"`
	AltText  string          `json:"alt"`
}

type RecordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type LogEntry struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
