// Package mention detects the review trigger mention inside free-form
// comment or pull request description text. Detection is pure and
// side-effect free so it can run on every incoming webhook event.
package mention

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTrigger is the mention that triggers a review when no custom
// trigger is configured.
const DefaultTrigger = "@reviewpilot"

// Detector matches a fixed trigger token inside arbitrary text.
type Detector struct {
	trigger string
}

// New creates a Detector for the given trigger. The trigger is matched
// case-insensitively; surrounding whitespace in the configured value is
// ignored. An empty trigger never matches.
func New(trigger string) *Detector {
	return &Detector{
		trigger: strings.ToLower(strings.TrimSpace(trigger)),
	}
}

// Detect reports whether the trigger occurs in text as a standalone token.
// Matching is case-insensitive and tolerant of surrounding whitespace and
// punctuation. It never matches inside a longer word, so "@reviewpilots"
// and "ci@reviewpilot" do not trigger. Empty or malformed input returns
// false, never an error.
func (d *Detector) Detect(text string) bool {
	if d == nil || d.trigger == "" || text == "" {
		return false
	}

	lower := strings.ToLower(text)
	for start := 0; ; {
		i := strings.Index(lower[start:], d.trigger)
		if i < 0 {
			return false
		}
		pos := start + i
		end := pos + len(d.trigger)
		if boundaryBefore(lower, pos) && boundaryAfter(lower, end) {
			return true
		}
		start = pos + 1
	}
}

// Trigger returns the normalized trigger this detector matches.
func (d *Detector) Trigger() string {
	return d.trigger
}

// boundaryBefore reports whether pos starts a token. A preceding letter or
// digit means the candidate is embedded in a longer word (e.g. an email
// local part directly touching the mention).
func boundaryBefore(s string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:pos])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// boundaryAfter reports whether end terminates a token. Letters, digits,
// underscores and hyphens continue a mention handle, so "@reviewpilot-bot"
// is a different handle and must not match.
func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	if r == '_' || r == '-' {
		return false
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Default is the detector for the built-in trigger mention.
var Default = New(DefaultTrigger)

// Detect is a convenience function using the default detector.
func Detect(text string) bool {
	return Default.Detect(text)
}
