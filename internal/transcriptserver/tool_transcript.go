package transcriptserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/paginate"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
)

func registerGetTranscript(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Get the plain-text transcript of a YouTube video. Tries uploaded subtitles, then auto-generated captions (original spoken language first), then speech-to-text. Returns the first page only. When is_truncated is true, read the full content with get_raw_subtitles, starting without a cursor and following its next_cursor.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.TranscriptInput) (*mcp.CallToolResult, engine.TranscriptOutput, error) {
		ref, err := d.Normalizer.Normalize(input.URL)
		if err != nil {
			return nil, engine.TranscriptOutput{}, err
		}
		res, err := d.Service.Transcript(ctx, ref, transcript.Request{})
		if err != nil {
			return nil, engine.TranscriptOutput{}, toolError(err)
		}

		text := engine.CleanSubtitles(res.Content)
		if text == "" {
			text = res.Content
		}
		page, err := paginate.Paginate(text, 0, "", d.Bounds)
		if err != nil {
			return nil, engine.TranscriptOutput{}, err
		}
		return nil, engine.TranscriptOutput{
			VideoID:     res.VideoID,
			URL:         ref.URL,
			Type:        string(res.Type),
			Lang:        res.Language,
			Origin:      string(res.Origin),
			Text:        page.Chunk,
			IsTruncated: page.IsTruncated,
			TotalLength: page.TotalLength,
			StartOffset: page.StartOffset,
			EndOffset:   page.EndOffset,
		}, nil
	})
}

// toolError logs unexpected failures and passes expected ones through.
func toolError(err error) error {
	switch {
	case errors.Is(err, transcript.ErrNotFound),
		errors.Is(err, transcript.ErrInvalidInput),
		errors.Is(err, paginate.ErrInvalidCursor),
		errors.Is(err, context.Canceled):
	default:
		slog.Error("tool: unexpected failure", slog.Any("error", err))
	}
	return err
}
