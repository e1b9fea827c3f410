package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// YouTube Innertube player API, queried as the ANDROID client. Serves the
// same Extractor surface as yt-dlp without a subprocess.

const (
	ytBaseURL        = "https://www.youtube.com"
	ytPlayerPath     = "/youtubei/v1/player"
	ytAndroidVersion = "20.10.38"
	ytAndroidUA      = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"

	maxPlayerResponse   = 3 << 20
	maxTimedTextBody    = 4 << 20
	trackKindAutomatic  = "asr"
	playabilityStatusOK = "OK"
)

// ErrUnplayable is returned when the player response refuses the video.
var ErrUnplayable = errors.New("video unplayable")

// InnertubeConfig configures the Innertube extractor.
type InnertubeConfig struct {
	// BaseURL overrides https://www.youtube.com, for tests.
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
	Retry   engine.RetryConfig
	Client  *http.Client
}

// Innertube extracts metadata, caption tracks and audio locators from the
// YouTube player endpoint.
type Innertube struct {
	cfg     InnertubeConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewInnertube creates an Innertube extractor.
func NewInnertube(cfg InnertubeConfig) *Innertube {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ytBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (engine.RetryConfig{}) {
		cfg.Retry = engine.DefaultRetryConfig
	}
	client := cfg.Client
	if client == nil {
		client = engine.NewHTTPClient(cfg.Timeout)
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Innertube{cfg: cfg, http: client, limiter: rate.NewLimiter(limit, cfg.Burst)}
}

type innertubeRequest struct {
	VideoID        string           `json:"videoId"`
	Context        innertubeContext `json:"context"`
	RacyCheckOk    bool             `json:"racyCheckOk"`
	ContentCheckOk bool             `json:"contentCheckOk"`
}

type innertubeContext struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails *struct {
		VideoID          string `json:"videoId"`
		Title            string `json:"title"`
		Author           string `json:"author"`
		LengthSeconds    string `json:"lengthSeconds"`
		ViewCount        string `json:"viewCount"`
		ShortDescription string `json:"shortDescription"`
	} `json:"videoDetails"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	StreamingData *struct {
		AdaptiveFormats []streamFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
	Name         struct {
		SimpleText string `json:"simpleText"`
	} `json:"name"`
}

type streamFormat struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Bitrate  int    `json:"bitrate"`
}

func (t captionTrack) automatic() bool { return t.Kind == trackKindAutomatic }

// needsPoToken reports whether a caption URL only works with a browser
// proof-of-origin token.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// player fetches the player response for the video behind url.
func (it *Innertube) player(ctx context.Context, videoURL string) (*playerResponse, error) {
	id := videoIDFromURL(videoURL)
	if id == "" {
		return nil, fmt.Errorf("innertube: no video id in %q", videoURL)
	}
	body, err := json.Marshal(innertubeRequest{
		VideoID: id,
		Context: innertubeContext{Client: innertubeClient{
			ClientName:        "ANDROID",
			ClientVersion:     ytAndroidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	data, err := it.do(ctx, "player", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.cfg.BaseURL+ytPlayerPath+"?prettyPrint=false", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return req, nil
	}, maxPlayerResponse)
	if err != nil {
		return nil, err
	}

	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("innertube player: decode: %w", err)
	}
	if ps := pr.PlayabilityStatus; ps != nil && ps.Status != "" && ps.Status != playabilityStatusOK {
		return nil, fmt.Errorf("innertube player: %w: %s %s", ErrUnplayable, ps.Status, ps.Reason)
	}
	return &pr, nil
}

// do runs one rate-limited HTTP call and returns the body of a 200 response.
func (it *Innertube) do(ctx context.Context, op string, build func() (*http.Request, error), limit int64) ([]byte, error) {
	if err := it.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("innertube: rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, it.cfg.Timeout)
	defer cancel()

	engine.IncrExtractCalls()
	var data []byte
	err := engine.TrackOperation(ctx, "innertube "+op, slowCallThreshold, func(ctx context.Context) error {
		resp, err := engine.RetryHTTP(ctx, it.cfg.Retry, func() (*http.Response, error) {
			req, err := build()
			if err != nil {
				return nil, err
			}
			return it.http.Do(req.WithContext(ctx))
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d: %s", resp.StatusCode, engine.TruncateRunes(strings.TrimSpace(string(data)), 200, "..."))
		}
		return nil
	})
	if err != nil {
		engine.IncrExtractErrors()
		return nil, fmt.Errorf("innertube %s: %w", op, err)
	}
	return data, nil
}

// Metadata maps the player response onto the yt-dlp shaped VideoMetadata.
func (it *Innertube) Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	pr, err := it.player(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	md := &VideoMetadata{
		WebpageURL:        videoURL,
		Subtitles:         map[string][]SubtitleFormat{},
		AutomaticCaptions: map[string][]SubtitleFormat{},
	}
	if d := pr.VideoDetails; d != nil {
		md.ID = d.VideoID
		md.Title = d.Title
		md.Channel = d.Author
		md.Uploader = d.Author
		md.Description = d.ShortDescription
		if secs, err := strconv.ParseFloat(d.LengthSeconds, 64); err == nil {
			md.Duration = secs
		}
		if views, err := strconv.ParseInt(d.ViewCount, 10, 64); err == nil {
			md.ViewCount = views
		}
	}
	for _, t := range usableTracks(pr) {
		dst := md.Subtitles
		if t.automatic() {
			dst = md.AutomaticCaptions
		}
		dst[t.LanguageCode] = append(dst[t.LanguageCode], SubtitleFormat{
			Ext:  "vtt",
			URL:  timedTextURL(t.BaseURL),
			Name: t.Name.SimpleText,
		})
	}
	return md, nil
}

// Subtitles fetches one caption track as WebVTT. A missing track yields
// "" with a nil error.
func (it *Innertube) Subtitles(ctx context.Context, videoURL string, auto bool, lang string) (string, error) {
	pr, err := it.player(ctx, videoURL)
	if err != nil {
		return "", err
	}
	var track *captionTrack
	for _, t := range usableTracks(pr) {
		if t.automatic() == auto && t.LanguageCode == lang {
			track = &t
			break
		}
	}
	if track == nil {
		return "", nil
	}

	data, err := it.do(ctx, "timedtext", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, timedTextURL(track.BaseURL), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ytAndroidUA)
		return req, nil
	}, maxTimedTextBody)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AudioURL returns the highest-bitrate audio-only stream URL.
func (it *Innertube) AudioURL(ctx context.Context, videoURL string) (string, error) {
	pr, err := it.player(ctx, videoURL)
	if err != nil {
		return "", err
	}
	if pr.StreamingData == nil {
		return "", ErrNoAudio
	}
	var audio []streamFormat
	for _, f := range pr.StreamingData.AdaptiveFormats {
		if f.URL != "" && strings.HasPrefix(f.MimeType, "audio/") {
			audio = append(audio, f)
		}
	}
	if len(audio) == 0 {
		return "", ErrNoAudio
	}
	sort.SliceStable(audio, func(i, j int) bool { return audio[i].Bitrate > audio[j].Bitrate })
	return audio[0].URL, nil
}

// usableTracks drops tracks that require a PoToken.
func usableTracks(pr *playerResponse) []captionTrack {
	if pr.Captions == nil {
		return nil
	}
	var out []captionTrack
	for _, t := range pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks {
		if t.BaseURL == "" || t.LanguageCode == "" {
			continue
		}
		if needsPoToken(t.BaseURL) {
			slog.Debug("innertube: skipping track requiring PoToken", slog.String("lang", t.LanguageCode))
			continue
		}
		out = append(out, t)
	}
	return out
}

// timedTextURL forces the WebVTT rendition of a caption track URL.
func timedTextURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	q := u.Query()
	q.Set("fmt", "vtt")
	u.RawQuery = q.Encode()
	return u.String()
}

// videoIDFromURL extracts the v= parameter from a canonical watch URL.
func videoIDFromURL(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}
