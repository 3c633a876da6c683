package domain

import (
	"encoding/json"
	"fmt"
)

// DataReferenceType discriminates the payload of a DataReference. The set is
// closed: unknown types are rejected at ingestion and at decode time rather
// than deferred to consumers.
type DataReferenceType string

const (
	DataReferenceTypeDocument        DataReferenceType = "document"
	DataReferenceTypeImage           DataReferenceType = "image"
	DataReferenceTypeVideoTranscript DataReferenceType = "video_transcript"
	DataReferenceTypeWebpage         DataReferenceType = "webpage"
)

// ReferencePayload is implemented by every data reference payload variant.
type ReferencePayload interface {
	ReferenceType() DataReferenceType
}

// DocumentPayload holds extracted document text plus the source file
// extension.
type DocumentPayload struct {
	Text string `json:"text"`
	Ext  string `json:"ext"`
}

func (DocumentPayload) ReferenceType() DataReferenceType { return DataReferenceTypeDocument }

// ImagePayload holds a displayable form of an uploaded image: always a local
// base64 data URL, optionally a remote provider URL.
type ImagePayload struct {
	Base64URL string `json:"base64_url"`
	RemoteURL string `json:"remote_url,omitempty"`
}

func (ImagePayload) ReferenceType() DataReferenceType { return DataReferenceTypeImage }

// VideoTranscriptPayload holds a resolved caption transcript of a video.
type VideoTranscriptPayload struct {
	VideoTitle   string           `json:"video_title"`
	CaptionName  string           `json:"caption_name"`
	LanguageCode string           `json:"language_code"`
	Segments     []TranscriptText `json:"segments"`
}

func (VideoTranscriptPayload) ReferenceType() DataReferenceType {
	return DataReferenceTypeVideoTranscript
}

// WebpagePayload holds fetched webpage content in readable text form.
type WebpagePayload struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (WebpagePayload) ReferenceType() DataReferenceType { return DataReferenceTypeWebpage }

// DataReference is a typed attachment on a workspace. Uuid is assigned by the
// content reference store and is unique per store lifetime. The payload shape
// is fully determined by Type.
type DataReference struct {
	UUID string            `json:"uuid"`
	Type DataReferenceType `json:"type"`
	Data ReferencePayload  `json:"data"`
}

func (r *DataReference) UnmarshalJSON(data []byte) error {
	var raw struct {
		UUID string            `json:"uuid"`
		Type DataReferenceType `json:"type"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.UUID = raw.UUID
	r.Type = raw.Type

	var payload ReferencePayload
	switch raw.Type {
	case DataReferenceTypeDocument:
		payload = &DocumentPayload{}
	case DataReferenceTypeImage:
		payload = &ImagePayload{}
	case DataReferenceTypeVideoTranscript:
		payload = &VideoTranscriptPayload{}
	case DataReferenceTypeWebpage:
		payload = &WebpagePayload{}
	default:
		return fmt.Errorf("unknown data reference type: %q", raw.Type)
	}

	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, payload); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %w", raw.Type, err)
		}
	}

	switch p := payload.(type) {
	case *DocumentPayload:
		r.Data = *p
	case *ImagePayload:
		r.Data = *p
	case *VideoTranscriptPayload:
		r.Data = *p
	case *WebpagePayload:
		r.Data = *p
	}
	return nil
}
