// Package format adapts one authored body to each target platform's
// length rules before it is handed to an adapter.
package format

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/plumehq/syndicate/internal/platform"
)

// ellipsis replaces the tail of an over-long body. We reserve three
// characters so the cut is visible even on byte-counted platforms.
const (
	ellipsis        = "…"
	ellipsisReserve = 3
)

// limits are the documented per-platform post lengths in runes.
var limits = map[string]int{
	platform.Twitter:   280,
	platform.Instagram: 2200,
	platform.TikTok:    2200,
	platform.LinkedIn:  3000,
	platform.Facebook:  63206,
	platform.YouTube:   5000,
}

// BodyLimit returns the platform's post length limit, or false for an
// unknown platform name.
func BodyLimit(platformName string) (int, bool) {
	limit, ok := limits[platformName]
	return limit, ok
}

// Truncate cuts body to at most limit runes, never splitting a rune,
// replacing the tail with an ellipsis when anything is dropped.
func Truncate(body string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return body
	}

	keep := limit - ellipsisReserve
	if keep < 0 {
		keep = 0
	}

	runes := []rune(body)
	return strings.TrimRightFunc(string(runes[:keep]), unicode.IsSpace) + ellipsis
}

// Hashtags extracts the distinct #tags of body in order of first
// appearance, lowercased. A bare '#' is not a tag.
func Hashtags(body string) []string {
	seen := make(map[string]struct{})
	var tags []string

	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
			j++
		}
		if j > i+1 {
			tag := strings.ToLower(string(runes[i:j]))
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
		i = j - 1
	}

	return tags
}

// For renders the post for one platform. Bodies over the limit are
// truncated; on twitter the hashtags the cut would lose are folded back
// onto the end when they fit, since discoverability there lives in the
// tags rather than the prose.
func For(platformName, body string, mediaURLs []string) platform.Post {
	limit, ok := limits[platformName]
	if !ok {
		return platform.Post{Body: body, MediaURLs: mediaURLs}
	}

	rendered := body
	if utf8.RuneCountInString(body) > limit {
		if platformName == platform.Twitter {
			rendered = foldHashtags(body, limit)
		} else {
			rendered = Truncate(body, limit)
		}
	}

	return platform.Post{Body: rendered, MediaURLs: mediaURLs}
}

// foldHashtags truncates body to limit while re-appending the hashtags
// the cut dropped. Tags that no longer fit are given up in order.
func foldHashtags(body string, limit int) string {
	truncated := Truncate(body, limit)

	var lost []string
	for _, tag := range Hashtags(body) {
		if !strings.Contains(strings.ToLower(truncated), tag) {
			lost = append(lost, tag)
		}
	}
	// Re-cut the prose to make room for the tag suffix; when even that
	// is too tight, give up tags from the end until it fits.
	for len(lost) > 0 {
		suffix := " " + strings.Join(lost, " ")
		room := limit - utf8.RuneCountInString(suffix)
		if room > ellipsisReserve {
			head := Truncate(body, room)
			if utf8.RuneCountInString(head)+utf8.RuneCountInString(suffix) <= limit {
				return head + suffix
			}
		}
		lost = lost[:len(lost)-1]
	}

	return truncated
}
