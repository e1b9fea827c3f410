package transcriptserver

import (
	"context"
	"math"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/paginate"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
)

func registerGetRawSubtitles(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_raw_subtitles",
		Description: "Get raw subtitle content (SRT/VTT) for a YouTube video, paginated. Set type (official|auto) and/or lang to fetch one specific track; omit both to auto-discover. Pass next_cursor back as cursor to continue reading.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.RawSubtitlesInput) (*mcp.CallToolResult, engine.RawSubtitlesOutput, error) {
		ref, err := d.Normalizer.Normalize(input.URL)
		if err != nil {
			return nil, engine.RawSubtitlesOutput{}, err
		}
		// Cursor errors surface before any extraction is attempted.
		if input.Cursor != "" {
			if _, err := paginate.DecodeCursor(input.Cursor, math.MaxInt); err != nil {
				return nil, engine.RawSubtitlesOutput{}, err
			}
		}
		req := transcript.Request{Type: transcript.TrackType(input.Type), Language: input.Lang}
		res, err := d.Service.Transcript(ctx, ref, req)
		if err != nil {
			return nil, engine.RawSubtitlesOutput{}, toolError(err)
		}

		page, err := paginate.Paginate(res.Content, input.Limit, input.Cursor, d.Bounds)
		if err != nil {
			return nil, engine.RawSubtitlesOutput{}, err
		}
		return nil, engine.RawSubtitlesOutput{
			VideoID:     res.VideoID,
			URL:         ref.URL,
			Type:        string(res.Type),
			Lang:        res.Language,
			Origin:      string(res.Origin),
			Content:     page.Chunk,
			NextCursor:  page.NextCursor,
			IsTruncated: page.IsTruncated,
			TotalLength: page.TotalLength,
			StartOffset: page.StartOffset,
			EndOffset:   page.EndOffset,
		}, nil
	})
}

func registerGetAvailableSubtitles(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_available_subtitles",
		Description: "List the subtitle languages available for a YouTube video, split into official (uploaded) and auto (generated) tracks.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.VideoURLInput) (*mcp.CallToolResult, engine.AvailableSubtitlesOutput, error) {
		ref, err := d.Normalizer.Normalize(input.URL)
		if err != nil {
			return nil, engine.AvailableSubtitlesOutput{}, err
		}
		cat, err := d.Service.Catalog(ctx, ref)
		if err != nil {
			return nil, engine.AvailableSubtitlesOutput{}, toolError(err)
		}
		return nil, engine.AvailableSubtitlesOutput{
			VideoID:  ref.ID,
			URL:      ref.URL,
			Official: nonNil(cat.Official),
			Auto:     nonNil(cat.Auto),
		}, nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
