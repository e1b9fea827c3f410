package transcript

import (
	"sort"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"github.com/anatolykoptev/go_transcript/internal/reference"
)

const descriptionMaxRunes = 500

// pseudoTracks are entries yt-dlp lists beside real languages.
var pseudoTracks = map[string]bool{"live_chat": true}

// CatalogFromMetadata builds the track catalog from an info document.
func CatalogFromMetadata(md *sources.VideoMetadata) TrackCatalog {
	if md == nil {
		return TrackCatalog{Official: []string{}, Auto: []string{}}
	}
	return TrackCatalog{
		Official: trackLanguages(md.Subtitles),
		Auto:     trackLanguages(md.AutomaticCaptions),
	}
}

func trackLanguages(m map[string][]sources.SubtitleFormat) []string {
	out := make([]string, 0, len(m))
	for lang, formats := range m {
		if pseudoTracks[lang] || len(formats) == 0 {
			continue
		}
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// autoOrder puts "*-orig" tracks (the spoken language) ahead of machine
// translations, keeping catalog order otherwise.
func autoOrder(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if strings.HasSuffix(l, "-orig") {
			out = append(out, l)
		}
	}
	for _, l := range langs {
		if !strings.HasSuffix(l, "-orig") {
			out = append(out, l)
		}
	}
	return out
}

// InfoFromMetadata summarizes an info document for ref.
func InfoFromMetadata(ref reference.VideoReference, md *sources.VideoMetadata) VideoInfo {
	cat := CatalogFromMetadata(md)
	channel := md.Channel
	if channel == "" {
		channel = md.Uploader
	}
	id := md.ID
	if id == "" {
		id = ref.ID
	}
	return VideoInfo{
		VideoID:     id,
		URL:         ref.URL,
		Title:       md.Title,
		Channel:     channel,
		Duration:    md.Duration,
		ViewCount:   md.ViewCount,
		LikeCount:   md.LikeCount,
		UploadDate:  md.UploadDate,
		Description: engine.TruncateAtWord(strings.TrimSpace(md.Description), descriptionMaxRunes),
		HasOfficial: len(cat.Official) > 0,
		HasAuto:     len(cat.Auto) > 0,
	}
}
