package transcriptserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
)

func registerGetVideoInfo(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_video_info",
		Description: "Get YouTube video metadata: title, channel, duration, view and like counts, upload date, a description excerpt, and whether subtitles exist.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.VideoURLInput) (*mcp.CallToolResult, transcript.VideoInfo, error) {
		ref, err := d.Normalizer.Normalize(input.URL)
		if err != nil {
			return nil, transcript.VideoInfo{}, err
		}
		info, err := d.Service.Info(ctx, ref)
		if err != nil {
			return nil, transcript.VideoInfo{}, toolError(err)
		}
		return nil, info, nil
	})
}
