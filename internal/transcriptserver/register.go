// Package transcriptserver exposes the transcript service as MCP tools.
package transcriptserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/paginate"
	"github.com/anatolykoptev/go_transcript/internal/reference"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
)

// Name is the MCP implementation name advertised to clients.
const Name = "go_transcript"

// Deps are the shared collaborators every per-session server uses.
type Deps struct {
	Normalizer *reference.Normalizer
	Service    *transcript.Service
	Bounds     paginate.Bounds
}

// RegisterTools registers all transcript tools on the given MCP server:
// get_transcript, get_raw_subtitles, get_available_subtitles, get_video_info.
func RegisterTools(server *mcp.Server, d Deps) {
	registerGetTranscript(server, d)
	registerGetRawSubtitles(server, d)
	registerGetAvailableSubtitles(server, d)
	registerGetVideoInfo(server, d)
}

// NewServer builds one dispatcher with every tool registered. Each
// transport session gets its own.
func NewServer(version string, d Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Version: version,
	}, nil)
	RegisterTools(server, d)
	return server
}
