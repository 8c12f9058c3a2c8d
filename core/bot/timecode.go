package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timeCodePattern gates free text before it reaches the time-code handler:
// one or two whitespace-separated tokens, each SS or MM:SS.
var timeCodePattern = regexp.MustCompile(
	`^(\d{1,2}:\d{1,2}( \d{1,2}:\d{1,2})?|\d{1,2}( \d{1,2})?)$`)

// MatchesTimeCode reports whether text has the shape of a time-code message.
func MatchesTimeCode(text string) bool {
	return timeCodePattern.MatchString(text)
}

// GetSeconds parses a single token, either "SS" or "MM:SS", into seconds.
func GetSeconds(token string) (int, error) {
	if m, s, ok := strings.Cut(token, ":"); ok {
		minutes, err := strconv.Atoi(m)
		if err != nil {
			return 0, fmt.Errorf("invalid minutes %q", m)
		}
		seconds, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid seconds %q", s)
		}
		return minutes*60 + seconds, nil
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("invalid time token %q", token)
	}
	return v, nil
}

// ParseWindow turns a time-code message into a [start, end] window. One
// token sets the start, with the end capped at start+60 or the track end.
// Two tokens set both bounds. The window must satisfy
// 0 <= start < end <= duration; anything else is rejected.
func ParseWindow(text string, durationSec int) (start, end int, err error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(tokens) > 2 {
		return 0, 0, fmt.Errorf("expected one or two time tokens, got %d", len(tokens))
	}

	start, err = GetSeconds(tokens[0])
	if err != nil {
		return 0, 0, err
	}

	if len(tokens) == 2 {
		end, err = GetSeconds(tokens[1])
		if err != nil {
			return 0, 0, err
		}
	} else {
		end = min(start+60, durationSec)
	}

	if start < 0 || start >= end || end > durationSec {
		return 0, 0, fmt.Errorf("window [%d, %d] out of range for duration %d", start, end, durationSec)
	}

	return start, end, nil
}

// DefaultWindow is the window applied right after track selection and by the
// "from start" action: the first minute, or the whole track if shorter.
func DefaultWindow(durationSec int) (start, end int) {
	return 0, min(60, durationSec)
}
