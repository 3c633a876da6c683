package reference

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"parley/domain"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var ErrNoCaptions = errors.New("video has no caption tracks")

var (
	videoIdRe        = regexp.MustCompile(`v=([^&]+)`)
	playerResponseRe = regexp.MustCompile(`var ytInitialPlayerResponse = (.*?);var meta =`)
)

// YoutubeClient loads video metadata and caption transcripts from the public
// watch page. No API key is involved; the player response embedded in the
// page HTML carries everything needed.
type YoutubeClient struct {
	httpClient *http.Client
}

func NewYoutubeClient(proxy string) (*YoutubeClient, error) {
	client, err := newHTTPClient(proxy, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return &YoutubeClient{httpClient: client}, nil
}

// extractVideoId normalizes the accepted URL forms down to a video id.
// Short youtu.be links carry the id in the path.
func extractVideoId(videoURL string) (string, error) {
	if strings.HasPrefix(videoURL, "https://youtu.be/") {
		id := strings.TrimPrefix(videoURL, "https://youtu.be/")
		if idx := strings.IndexAny(id, "?&"); idx >= 0 {
			id = id[:idx]
		}
		if id == "" {
			return "", fmt.Errorf("invalid video url: %s", videoURL)
		}
		return id, nil
	}
	if !strings.HasPrefix(videoURL, "https://www.youtube.com") {
		return "", fmt.Errorf("not a valid video link: %s", videoURL)
	}
	arr := videoIdRe.FindStringSubmatch(videoURL)
	if len(arr) == 0 {
		return "", fmt.Errorf("invalid video url: %s", videoURL)
	}
	return arr[1], nil
}

// LoadVideo fetches the watch page and extracts the video details plus its
// derived caption track list.
func (c *YoutubeClient) LoadVideo(ctx context.Context, videoURL string) (domain.YoutubeVideoResult, error) {
	var empty domain.YoutubeVideoResult

	videoId, err := extractVideoId(videoURL)
	if err != nil {
		return empty, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.youtube.com/watch?v="+videoId, nil)
	if err != nil {
		return empty, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return empty, fmt.Errorf("cannot fetch watch page: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, err
	}

	arr := playerResponseRe.FindStringSubmatch(string(body))
	if len(arr) < 2 || !gjson.Valid(arr[1]) {
		return empty, errors.New("cannot find player response in watch page")
	}
	player := gjson.Parse(arr[1])

	return domain.YoutubeVideoResult{
		Details:  parseVideoDetails(player.Get("videoDetails")),
		Captions: deriveCaptions(player.Get("captions.playerCaptionsTracklistRenderer")),
	}, nil
}

func parseVideoDetails(details gjson.Result) domain.YoutubeVideoDetails {
	keywords := make([]string, 0)
	for _, k := range details.Get("keywords").Array() {
		keywords = append(keywords, k.String())
	}
	thumbnails := details.Get("thumbnail.thumbnails").Array()
	picURL := ""
	if len(thumbnails) > 0 {
		picURL = thumbnails[len(thumbnails)-1].Get("url").String()
	}
	return domain.YoutubeVideoDetails{
		Title:         details.Get("title").String(),
		LengthSeconds: details.Get("lengthSeconds").String(),
		Description:   details.Get("shortDescription").String(),
		Keywords:      keywords,
		PicURL:        picURL,
		Author:        details.Get("author").String(),
	}
}

// deriveCaptions flattens the caption track list. Native tracks keep provider
// order; when the first track is translatable, one machine-translated variant
// per translation language is appended after the native tracks.
func deriveCaptions(renderer gjson.Result) []domain.YoutubeCaption {
	tracks := renderer.Get("captionTracks").Array()
	captions := make([]domain.YoutubeCaption, 0, len(tracks))
	for _, track := range tracks {
		captions = append(captions, domain.YoutubeCaption{
			Name:         track.Get("name.simpleText").String(),
			LanguageCode: track.Get("languageCode").String(),
			URL:          track.Get("baseUrl").String(),
			IsAsr:        track.Get("kind").String() == "asr",
			IsTranslated: false,
		})
	}
	if len(tracks) == 0 || !tracks[0].Get("isTranslatable").Bool() {
		return captions
	}

	baseURL := tracks[0].Get("baseUrl").String()
	for _, lang := range renderer.Get("translationLanguages").Array() {
		captions = append(captions, domain.YoutubeCaption{
			Name:         lang.Get("languageName.simpleText").String(),
			LanguageCode: lang.Get("languageCode").String(),
			URL:          baseURL + "&tlang=" + lang.Get("languageCode").String(),
			IsAsr:        false,
			IsTranslated: true,
		})
	}
	return captions
}

type transcriptDocument struct {
	XMLName xml.Name          `xml:"transcript"`
	Texts   []transcriptEntry `xml:"text"`
}

type transcriptEntry struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Value string  `xml:",chardata"`
}

// GetTranscript fetches and parses the timed transcript of a caption track.
func (c *YoutubeClient) GetTranscript(ctx context.Context, caption domain.YoutubeCaption) ([]domain.TranscriptText, error) {
	if caption.URL == "" {
		return nil, ErrNoCaptions
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, caption.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot fetch transcript: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var doc transcriptDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse transcript: %w", err)
	}

	segments := make([]domain.TranscriptText, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		segments = append(segments, domain.TranscriptText{Start: t.Start, Dur: t.Dur, Value: t.Value})
	}
	return segments, nil
}

// NewVideoTranscriptReference wraps a resolved transcript as an attachable
// data reference.
func NewVideoTranscriptReference(videoTitle string, caption domain.YoutubeCaption, segments []domain.TranscriptText) domain.DataReference {
	return domain.DataReference{
		UUID: uuid.NewString(),
		Type: domain.DataReferenceTypeVideoTranscript,
		Data: domain.VideoTranscriptPayload{
			VideoTitle:   videoTitle,
			CaptionName:  caption.Name,
			LanguageCode: caption.LanguageCode,
			Segments:     segments,
		},
	}
}
