package utils

import (
	"encoding/base64"
	"errors"
	"strings"
)

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the bytes and mime type held by a base64 data URL.
// fallbackType is used when the header carries no mime type.
func DecodeDataURL(dataURL, fallbackType string) ([]byte, string, error) {
	header, payload, found := strings.Cut(dataURL, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return nil, "", errors.New("malformed data url")
	}
	mimeType := fallbackType
	if m, ok := strings.CutSuffix(strings.TrimPrefix(header, "data:"), ";base64"); ok {
		if m != "" {
			mimeType = m
		}
	} else {
		return nil, "", errors.New("data url is not base64 encoded")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// DataURLSize is the decoded length of a base64 data URL without decoding it.
func DataURLSize(dataURL string) int {
	_, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return len(dataURL)
	}
	return base64.StdEncoding.DecodedLen(len(payload)) - strings.Count(payload[max(0, len(payload)-2):], "=")
}
