package engine

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// UserAgent identifies outbound HTTP calls.
const UserAgent = "go_transcript/1.0"

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)

	// WEBVTT header, Kind:/Language:/NOTE metadata, STYLE/REGION blocks.
	vttHeaderRe   = regexp.MustCompile(`^WEBVTT\b`)
	vttMetaRe     = regexp.MustCompile(`^(Kind|Language|NOTE|STYLE|REGION)\b`)
	cueIDRe       = regexp.MustCompile(`^\d+$`)
	cueTimingRe   = regexp.MustCompile(`^(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}\s*-->\s*(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}`)
	inlineTimeRe  = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}[.,]\d{3}>`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// CleanHTML strips HTML tags, unescapes entities and trims whitespace.
func CleanHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}

// CleanSubtitles turns raw SRT or WebVTT content into plain text.
// Cue numbers, timings, headers and markup are dropped, and the rolling
// lines auto-generated captions repeat across cues are collapsed.
// Input that has no subtitle structure is returned with whitespace squeezed.
func CleanSubtitles(raw string) string {
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	var out []string
	prev := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		switch {
		case trimmed == "":
			continue
		case vttHeaderRe.MatchString(trimmed), vttMetaRe.MatchString(trimmed):
			continue
		case cueTimingRe.MatchString(trimmed):
			continue
		case cueIDRe.MatchString(trimmed) && timingFollows(lines, i):
			continue
		}

		trimmed = inlineTimeRe.ReplaceAllString(trimmed, "")
		trimmed = CleanHTML(trimmed)
		trimmed = whitespaceRun.ReplaceAllString(trimmed, " ")
		// Auto captions repeat the previous cue's last line as the next cue's first.
		if trimmed == "" || trimmed == prev {
			continue
		}
		out = append(out, trimmed)
		prev = trimmed
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

// timingFollows reports whether line i is directly followed by a cue timing
// line, which makes it a cue number rather than spoken digits.
func timingFollows(lines []string, i int) bool {
	return i+1 < len(lines) && cueTimingRe.MatchString(strings.TrimSpace(lines[i+1]))
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + suffix
		}
		n++
	}
	return s
}

// TruncateAtWord truncates s to at most maxLen runes, cutting back to the
// last word boundary when there is one. "..." is appended when cut.
func TruncateAtWord(s string, maxLen int) string {
	if maxLen < 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	cut := TruncateRunes(s, maxLen, "")
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(cut, unicode.IsSpace) + "..."
}
