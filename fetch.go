package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/transcript"
)

// fetchCmd resolves one video from the command line, bypassing MCP.
func fetchCmd() *cobra.Command {
	var (
		typ  string
		lang string
		raw  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch [VIDEO_URL_OR_ID]",
		Short: "Resolve a transcript and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog := setupLogging()
			defer closeLog()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := newApp(cmd.Context(), cfg)
			defer a.Close()

			ref, err := a.normalizer.Normalize(args[0])
			if err != nil {
				return err
			}
			res, err := a.service.Transcript(cmd.Context(), ref, transcript.Request{
				Type:     transcript.TrackType(typ),
				Language: lang,
			})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ref.URL, err)
			}
			if !raw {
				if text := engine.CleanSubtitles(res.Content); text != "" {
					res.Content = text
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "track type: official or auto (default: auto-discover)")
	cmd.Flags().StringVar(&lang, "lang", "", "language code, e.g. en or en-orig")
	cmd.Flags().BoolVar(&raw, "raw", false, "print raw subtitle content instead of plain text")
	return cmd
}
