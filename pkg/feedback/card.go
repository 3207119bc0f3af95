// Package feedback presents verdicts to the user as a status card, speech
// and haptic pulses.
package feedback

import "github.com/teslashibe/safevision/pkg/protocol"

// Subtitles and styles shown under the verdict message.
const (
	SubtitleSafe    = "Safe to proceed"
	SubtitleCaution = "Exercise caution"

	StyleSafe    = "safe"
	StyleCaution = "caution"
)

// Card is the visual rendering of a verdict.
type Card struct {
	Message  string `json:"message"`
	Safe     bool   `json:"safe"`
	Subtitle string `json:"subtitle"`
	Style    string `json:"style"`
}

// Render returns the card for v, or nil when nothing is being processed.
func Render(v protocol.Verdict, processing bool) *Card {
	if !processing {
		return nil
	}
	if v.IsSafe {
		return &Card{Message: v.Message, Safe: true, Subtitle: SubtitleSafe, Style: StyleSafe}
	}
	return &Card{Message: v.Message, Safe: false, Subtitle: SubtitleCaution, Style: StyleCaution}
}
