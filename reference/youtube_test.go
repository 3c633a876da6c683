package reference

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parley/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractVideoId(t *testing.T) {
	cases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10s", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", false},
		{"https://example.com/watch?v=abc", "", true},
		{"https://www.youtube.com/feed", "", true},
	}
	for _, tc := range cases {
		id, err := extractVideoId(tc.url)
		if tc.wantErr {
			assert.Error(t, err, tc.url)
		} else {
			require.NoError(t, err, tc.url)
			assert.Equal(t, tc.want, id)
		}
	}
}

const captionRendererFixture = `{
	"captionTracks": [
		{"baseUrl": "https://yt.example/caption?lang=en", "name": {"simpleText": "English (auto-generated)"}, "languageCode": "en", "kind": "asr", "isTranslatable": true},
		{"baseUrl": "https://yt.example/caption?lang=fr", "name": {"simpleText": "French"}, "languageCode": "fr", "isTranslatable": false}
	],
	"translationLanguages": [
		{"languageCode": "de", "languageName": {"simpleText": "German"}},
		{"languageCode": "ja", "languageName": {"simpleText": "Japanese"}}
	]
}`

func TestDeriveCaptions(t *testing.T) {
	captions := deriveCaptions(gjson.Parse(captionRendererFixture))
	require.Len(t, captions, 4)

	assert.Equal(t, "English (auto-generated)", captions[0].Name)
	assert.True(t, captions[0].IsAsr)
	assert.False(t, captions[0].IsTranslated)

	assert.Equal(t, "French", captions[1].Name)
	assert.False(t, captions[1].IsAsr)

	// translated variants derive from the first translatable track
	assert.Equal(t, "German", captions[2].Name)
	assert.True(t, captions[2].IsTranslated)
	assert.Equal(t, "https://yt.example/caption?lang=en&tlang=de", captions[2].URL)
	assert.Equal(t, "ja", captions[3].LanguageCode)
}

func TestDeriveCaptionsNotTranslatable(t *testing.T) {
	renderer := gjson.Parse(`{
		"captionTracks": [{"baseUrl": "u", "name": {"simpleText": "English"}, "languageCode": "en", "isTranslatable": false}],
		"translationLanguages": [{"languageCode": "de", "languageName": {"simpleText": "German"}}]
	}`)
	captions := deriveCaptions(renderer)
	require.Len(t, captions, 1)
	assert.False(t, captions[0].IsTranslated)
}

func TestDeriveCaptionsEmpty(t *testing.T) {
	assert.Empty(t, deriveCaptions(gjson.Parse(`{}`)))
}

func TestGetTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?>
<transcript>
	<text start="0.32" dur="2.5">first line</text>
	<text start="2.82" dur="3.1">second line</text>
	<text start="5.92" dur="1.0">third line</text>
</transcript>`)
	}))
	defer server.Close()

	client, err := NewYoutubeClient("")
	require.NoError(t, err)

	segments, err := client.GetTranscript(context.Background(), domain.YoutubeCaption{URL: server.URL})
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, "first line", segments[0].Value)
	assert.Equal(t, 0.32, segments[0].Start)
	assert.Equal(t, 2.5, segments[0].Dur)

	for i := 1; i < len(segments); i++ {
		assert.GreaterOrEqual(t, segments[i].Start, segments[i-1].Start)
	}
}

func TestGetTranscriptNoURL(t *testing.T) {
	client, err := NewYoutubeClient("")
	require.NoError(t, err)
	_, err = client.GetTranscript(context.Background(), domain.YoutubeCaption{})
	assert.ErrorIs(t, err, ErrNoCaptions)
}

func TestLoadVideoParsesWatchPage(t *testing.T) {
	player := `{"videoDetails": {"title": "Test Video", "lengthSeconds": "212", "author": "Tester", "shortDescription": "desc", "keywords": ["a", "b"], "thumbnail": {"thumbnails": [{"url": "small"}, {"url": "large"}]}}, "captions": {"playerCaptionsTracklistRenderer": ` + captionRendererFixture + `}}`

	// the watch page embeds the player response on a single line; the
	// extraction regex does not match across newlines
	compactPlayer := strings.NewReplacer("\n", "", "\t", "").Replace(player)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><script>var ytInitialPlayerResponse = %s;var meta = {};</script></html>", compactPlayer)
	}))
	defer server.Close()

	client, err := NewYoutubeClient("")
	require.NoError(t, err)
	// point the watch page fetch at the test server
	client.httpClient.Transport = rewriteTransport{target: server.URL}

	result, err := client.LoadVideo(context.Background(), "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)

	assert.Equal(t, "Test Video", result.Details.Title)
	assert.Equal(t, "212", result.Details.LengthSeconds)
	assert.Equal(t, []string{"a", "b"}, result.Details.Keywords)
	assert.Equal(t, "large", result.Details.PicURL)
	assert.Len(t, result.Captions, 4)
}

type rewriteTransport struct {
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redirected, err := http.NewRequestWithContext(req.Context(), req.Method, t.target+"/?"+req.URL.RawQuery, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultTransport.RoundTrip(redirected)
}
