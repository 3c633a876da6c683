package domain

// YoutubeVideoResult separates a video's details from its available caption
// tracks. Captions preserve provider order; translated variants derived from
// the first translatable track come after the native tracks.
type YoutubeVideoResult struct {
	Details  YoutubeVideoDetails `json:"details"`
	Captions []YoutubeCaption    `json:"captions"`
}

type YoutubeVideoDetails struct {
	Title         string   `json:"title"`
	LengthSeconds string   `json:"length_seconds"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
	PicURL        string   `json:"pic_url"`
	Author        string   `json:"author"`
}

// YoutubeCaption is one selectable caption track. IsAsr marks automatic
// speech recognition tracks; IsTranslated marks machine-translated variants.
type YoutubeCaption struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	URL          string `json:"url"`
	IsAsr        bool   `json:"is_asr"`
	IsTranslated bool   `json:"is_translated"`
}

// TranscriptText is a single timed transcript segment. Segments form a finite
// ordered sequence with non-decreasing start values.
type TranscriptText struct {
	Start float64 `json:"start"`
	Dur   float64 `json:"dur"`
	Value string  `json:"value"`
}
