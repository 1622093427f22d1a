// Package pathlist manipulates PATH-style variable values: ordered lists of
// segments joined by the platform's path-list separator. Composition is
// append-only and de-duplicating, so repeated appends of the same segment
// keep its earliest position.
package pathlist

import (
	"os"
	"strings"
)

// Separator is the platform path-list separator as a string.
const Separator = string(os.PathListSeparator)

// Split breaks a path-list value into its segments. Empty segments are
// dropped so a trailing separator does not produce a phantom entry.
func Split(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, Separator)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return segments
}

// Join renders segments back into a path-list value.
func Join(segments []string) string {
	return strings.Join(segments, Separator)
}

// Append adds segment to the end of value unless it is already present, in
// which case value is returned unchanged.
func Append(value, segment string) string {
	segments := Split(value)
	if Index(segments, segment) >= 0 {
		return Join(segments)
	}
	return Join(append(segments, segment))
}

// Index returns the position of segment within segments, or -1.
func Index(segments []string, segment string) int {
	for i, s := range segments {
		if s == segment {
			return i
		}
	}
	return -1
}

// Contains reports whether value holds segment as a whole entry.
func Contains(value, segment string) bool {
	return Index(Split(value), segment) >= 0
}

// OrderedAfter reports whether segment appears in value at a position after
// the entry named by after. When after is empty it degrades to Contains.
func OrderedAfter(value, segment, after string) bool {
	segments := Split(value)
	si := Index(segments, segment)
	if si < 0 {
		return false
	}
	if after == "" {
		return true
	}
	ai := Index(segments, after)
	return ai >= 0 && ai < si
}
