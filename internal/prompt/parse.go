package prompt

import (
	"regexp"
	"strings"
)

var (
	numberedLine = regexp.MustCompile(`^\s*\d+\.\s*(.*)$`)
	numberMarker = regexp.MustCompile(`\d+\.`)
)

// ParseNumberedList extracts at most want messages from a generated
// numbered list. Lines starting with "N." are taken first. If that yields
// fewer than want, the whole text is split on every "N." marker instead and
// the larger result wins. Entries are trimmed, empty and repeated entries
// are dropped and nothing is ever padded, so the result may be shorter
// than want.
func ParseNumberedList(text string, want int) []string {
	if want <= 0 {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			lines = append(lines, m[1])
		}
	}
	best := clean(lines)
	if len(best) >= want {
		return best[:want]
	}

	if split := clean(splitOnMarkers(text)); len(split) > len(best) {
		best = split
	}
	if len(best) > want {
		best = best[:want]
	}
	return best
}

// splitOnMarkers splits text on "N." markers. Text before the first marker is
// preamble ("Here are five messages:") and is discarded; text without any
// marker is returned whole.
func splitOnMarkers(text string) []string {
	locs := numberMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, text[loc[1]:end])
	}
	return out
}

func clean(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
