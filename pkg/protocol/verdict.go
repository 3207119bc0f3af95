// Package protocol defines the wire types exchanged with the inference
// backend and the dashboard: the per-frame verdict, the image request body,
// and the typed WebSocket envelope.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FallbackMessage is published when a dispatch fails for any reason.
const FallbackMessage = "Error processing image"

// ErrMalformedVerdict is returned when a response body is not a verdict.
var ErrMalformedVerdict = errors.New("protocol: malformed verdict")

// Verdict is the backend's judgment for one frame.
// It is always replaced wholesale, never patched.
type Verdict struct {
	Message string `json:"message"`
	IsSafe  bool   `json:"isSafe"`
}

// Placeholder returns the initial verdict shown before any response.
func Placeholder() Verdict {
	return Verdict{Message: "", IsSafe: true}
}

// Fallback returns the verdict published when a dispatch fails.
func Fallback() Verdict {
	return Verdict{Message: FallbackMessage, IsSafe: false}
}

// IsZero reports whether v equals the placeholder.
func (v Verdict) IsZero() bool {
	return v == Placeholder()
}

// ParseVerdict decodes a response body into a Verdict.
// Both fields must be present with the right JSON types.
func ParseVerdict(data []byte) (Verdict, error) {
	var raw struct {
		Message *string `json:"message"`
		IsSafe  *bool   `json:"isSafe"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if raw.Message == nil {
		return Verdict{}, fmt.Errorf("%w: missing message", ErrMalformedVerdict)
	}
	if raw.IsSafe == nil {
		return Verdict{}, fmt.Errorf("%w: missing isSafe", ErrMalformedVerdict)
	}
	return Verdict{Message: *raw.Message, IsSafe: *raw.IsSafe}, nil
}

// ParseVerdictData decodes the data of a verdict message with the same
// checks as ParseVerdict. The frame ID is returned whenever it can be read,
// even if the verdict itself is malformed.
func ParseVerdictData(data []byte) (VerdictData, error) {
	var head struct {
		FrameID string `json:"frame_id"`
	}
	_ = json.Unmarshal(data, &head)

	v, err := ParseVerdict(data)
	return VerdictData{FrameID: head.FrameID, Verdict: v}, err
}

// ProcessImageRequest is the JSON body of POST /process-image.
type ProcessImageRequest struct {
	// Image is a data URL, e.g. "data:image/jpeg;base64,/9j/4AAQ...".
	Image string `json:"image"`
}
