package onboard

import "strings"

// rejectionMarkers are the strings Junos prints when it refuses a
// configuration line or a commit.
var rejectionMarkers = []string{
	"syntax error",
	"unknown command",
	"missing argument",
	"invalid ",
	"error:",
}

// rejectionIn scans device output for a rejection and returns the
// offending output line verbatim, or "" when the output is clean.
func rejectionIn(output string) string {
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range rejectionMarkers {
			if strings.Contains(lower, marker) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// nonBlank filters empty and whitespace-only lines. The Mist command set
// preserves blank lines from the API response, and the device CLI treats
// them as no-ops at best.
func nonBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
