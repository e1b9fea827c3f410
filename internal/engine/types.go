package engine

// --- Tool input types ---

type TranscriptInput struct {
	URL string `json:"url" jsonschema:"YouTube URL or 11-character video ID"`
}

type RawSubtitlesInput struct {
	URL    string `json:"url" jsonschema:"YouTube URL or 11-character video ID"`
	Type   string `json:"type,omitempty" jsonschema:"Track type: official (uploaded) or auto (generated). Setting type or lang pins a single track; omit both to auto-discover"`
	Lang   string `json:"lang,omitempty" jsonschema:"Language code, e.g. en, en-orig, pt-BR (default: en when type is set)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Max characters per page (default 10000, clamped to 100..100000)"`
	Cursor string `json:"cursor,omitempty" jsonschema:"Opaque cursor from a previous next_cursor to read the following page"`
}

type VideoURLInput struct {
	URL string `json:"url" jsonschema:"YouTube URL or 11-character video ID"`
}

// --- Output types (JSON responses) ---

// TranscriptOutput is the first page of cleaned transcript text. Offsets
// count characters of the cleaned text. It carries no cursor: cleaned
// offsets do not address the raw content get_raw_subtitles pages.
type TranscriptOutput struct {
	VideoID     string `json:"video_id"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Lang        string `json:"lang"`
	Origin      string `json:"origin"`
	Text        string `json:"text"`
	IsTruncated bool   `json:"is_truncated"`
	TotalLength int    `json:"total_length"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

type RawSubtitlesOutput struct {
	VideoID     string `json:"video_id"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Lang        string `json:"lang"`
	Origin      string `json:"origin"`
	Content     string `json:"content"`
	NextCursor  string `json:"next_cursor,omitempty"`
	IsTruncated bool   `json:"is_truncated"`
	TotalLength int    `json:"total_length"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

type AvailableSubtitlesOutput struct {
	VideoID  string   `json:"video_id"`
	URL      string   `json:"url"`
	Official []string `json:"official"`
	Auto     []string `json:"auto"`
}
