package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MIMEJPEG is the only image type the pipeline produces.
const MIMEJPEG = "image/jpeg"

// ErrInvalidDataURL is returned for strings that are neither a base64 data
// URL nor plain base64.
var ErrInvalidDataURL = errors.New("protocol: invalid data URL")

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL extracts the MIME type and payload of a base64 data URL.
// Bare base64 is accepted and reported as image/jpeg.
func DecodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidDataURL)
	}

	mime := MIMEJPEG
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return "", nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
		}
		params := strings.Split(header, ";")
		if !strings.EqualFold(params[len(params)-1], "base64") {
			return "", nil, fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURL)
		}
		if params[0] != "" && params[0] != "base64" {
			mime = params[0]
		}
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mime, data, nil
}
