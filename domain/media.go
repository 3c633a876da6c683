package domain

// GenerativeImage is a request to render an image from a creative prompt.
type GenerativeImage struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// GenerateImageResult is the specialized ask outcome carrying generated image
// URLs and the generation duration in seconds.
type GenerateImageResult struct {
	Text      string   `json:"text"`
	URL       string   `json:"url"`
	ImageURLs []string `json:"image_urls"`
	Duration  float64  `json:"duration"`
}

type GenerativeMusic struct {
	IframeID  string `json:"iframeid"`
	RequestID string `json:"requestid"`
	Text      string `json:"text"`
}

type GenerateMusicResult struct {
	IframeID     string  `json:"iframeid"`
	RequestID    string  `json:"requestid"`
	Text         string  `json:"text"`
	CoverImgURL  string  `json:"cover_img_url"`
	MusicURL     string  `json:"music_url"`
	VideoURL     string  `json:"video_url"`
	Duration     float64 `json:"duration"`
	MusicalStyle string  `json:"musical_style"`
	Title        string  `json:"title"`
	Lyrics       string  `json:"lyrics"`
	TimeElapsed  float64 `json:"time_elapsed"`
}

// UploadImageResult is the terminal outcome of an image ingestion. Canceled is
// a distinct outcome, not an error: a canceled user pick yields
// {Canceled: true} with no URLs populated.
type UploadImageResult struct {
	Base64URL string `json:"base64_url"`
	BingURL   string `json:"bing_url"`
	Canceled  bool   `json:"canceled"`
}

// UploadDocumentResult is the terminal outcome of a document ingestion.
type UploadDocumentResult struct {
	Canceled bool   `json:"canceled,omitempty"`
	Text     string `json:"text,omitempty"`
	Ext      string `json:"ext,omitempty"`
}
