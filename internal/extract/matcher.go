// Package extract locates the embedded profile or video record inside page
// markup or serialized page state, de-duplicates it and parses it.
package extract

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/edgecomet/detailwatch/pkg/types"
)

const (
	profileStart = `{"userInfo":`
	videoStart   = `"webapp.video-detail":`

	// boundary is the closing brace of the record followed by the next sibling key.
	// Only the brace belongs to the fragment.
	boundary = `},"webapp`

	lineTerminators = "\n\r\u2028\u2029"
)

// startKey returns the text a fragment must begin with for the given mode
func startKey(mode types.PageMode) string {
	if mode == types.PageModeVideoOrPhoto {
		return videoStart
	}
	return profileStart
}

// Match scans text for the record selected by mode and returns the last
// complete fragment. A fragment runs from the start key up to and including
// the first '}' that is directly followed by `,"webapp`, and never spans a
// line terminator. Empty input is valid and yields no match.
//
// The scan is linear in len(text) per candidate and does not backtrack.
func Match(text string, mode types.PageMode) (string, bool) {
	start := startKey(mode)

	var last string
	found := false

	pos := 0
	for pos < len(text) {
		i := strings.Index(text[pos:], start)
		if i < 0 {
			break
		}
		begin := pos + i
		bodyStart := begin + len(start)

		j := strings.Index(text[bodyStart:], boundary)
		if j < 0 {
			// No later start can find a boundary either.
			break
		}
		end := bodyStart + j + 1

		if k := strings.IndexAny(text[begin:end], lineTerminators); k >= 0 {
			// Every start before the terminator sees the same boundary, so skip past it.
			pos = begin + k + 1
			continue
		}

		last = text[begin:end]
		found = true
		pos = end
	}

	return last, found
}

// Fingerprint is a short stable identifier for a fragment, used in logs,
// events and published results instead of the full text.
func Fingerprint(fragment string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fragment))
}
