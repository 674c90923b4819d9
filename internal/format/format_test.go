package format

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/plumehq/syndicate/internal/platform"
)

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		platform string
		want     int
	}{
		{platform.Twitter, 280},
		{platform.Instagram, 2200},
		{platform.TikTok, 2200},
		{platform.LinkedIn, 3000},
		{platform.Facebook, 63206},
		{platform.YouTube, 5000},
	}

	for _, tt := range tests {
		got, ok := BodyLimit(tt.platform)
		if !ok {
			t.Errorf("BodyLimit(%s) not found", tt.platform)
		}
		if got != tt.want {
			t.Errorf("BodyLimit(%s) = %d, want %d", tt.platform, got, tt.want)
		}
	}

	if _, ok := BodyLimit("myspace"); ok {
		t.Error("unknown platform should not have a limit")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		limit int
		want  string
	}{
		{"under limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"over limit", "hello world", 8, "hello…"},
		{"trailing space trimmed", "hello     world", 9, "hello…"},
		{"zero limit passes through", "hello", 0, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.body, tt.limit)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.body, tt.limit, got, tt.want)
			}
		})
	}
}

func TestTruncate_NeverSplitsRunes(t *testing.T) {
	body := strings.Repeat("héllo wörld ", 30)
	for limit := 4; limit < 40; limit++ {
		got := Truncate(body, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("limit %d produced invalid UTF-8: %q", limit, got)
		}
		if utf8.RuneCountInString(got) > limit {
			t.Errorf("limit %d: result has %d runes", limit, utf8.RuneCountInString(got))
		}
	}
}

func TestHashtags(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"none", "just plain text", nil},
		{"single", "launch day #golang", []string{"#golang"}},
		{"multiple ordered", "#first middle #second end", []string{"#first", "#second"}},
		{"dedupe case-insensitive", "#Go and #go again", []string{"#go"}},
		{"bare hash ignored", "issue # 42 and #42", []string{"#42"}},
		{"underscore and digits", "#go_1_2 works", []string{"#go_1_2"}},
		{"punctuation terminates", "ship it! #done.", []string{"#done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hashtags(tt.body)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Hashtags(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestFor_ShortBodyPassesThrough(t *testing.T) {
	media := []string{"https://cdn.example.com/a.jpg"}
	post := For(platform.LinkedIn, "short update", media)

	if post.Body != "short update" {
		t.Errorf("body changed: %q", post.Body)
	}
	if !reflect.DeepEqual(post.MediaURLs, media) {
		t.Errorf("media changed: %v", post.MediaURLs)
	}
}

func TestFor_TruncatesOverLimit(t *testing.T) {
	body := strings.Repeat("a", 3500)
	post := For(platform.LinkedIn, body, nil)

	if got := utf8.RuneCountInString(post.Body); got > 3000 {
		t.Errorf("linkedin body is %d runes, limit 3000", got)
	}
	if !strings.HasSuffix(post.Body, ellipsis) {
		t.Error("truncated body should end in ellipsis")
	}
}

func TestFor_TwitterFoldsHashtagsBack(t *testing.T) {
	body := strings.Repeat("word ", 60) + "#launch #golang"
	post := For(platform.Twitter, body, nil)

	if got := utf8.RuneCountInString(post.Body); got > 280 {
		t.Errorf("twitter body is %d runes, limit 280", got)
	}
	if !strings.Contains(post.Body, "#launch") {
		t.Errorf("lost #launch: %q", post.Body)
	}
	if !strings.Contains(post.Body, "#golang") {
		t.Errorf("lost #golang: %q", post.Body)
	}
}

func TestFor_TwitterKeepsIntactHashtags(t *testing.T) {
	body := "#early tag then " + strings.Repeat("filler ", 50)
	post := For(platform.Twitter, body, nil)

	if got := utf8.RuneCountInString(post.Body); got > 280 {
		t.Errorf("twitter body is %d runes, limit 280", got)
	}
	if n := strings.Count(post.Body, "#early"); n != 1 {
		t.Errorf("expected #early exactly once, got %d in %q", n, post.Body)
	}
}

func TestFor_UnknownPlatformPassesThrough(t *testing.T) {
	body := strings.Repeat("x", 10000)
	post := For("myspace", body, nil)
	if post.Body != body {
		t.Error("unknown platform must not be reformatted")
	}
}
