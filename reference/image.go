package reference

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"parley/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ImageUploader pushes image data to a remote host and returns its URL. The
// built-in conversational backend implements this; asks without one keep the
// image local.
type ImageUploader interface {
	UploadImage(ctx context.Context, jpgData []byte) (string, error)
}

// convertImageToJpg re-encodes any supported image format as jpeg, the only
// format the remote host accepts.
func convertImageToJpg(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IngestImageData converts raw image bytes into an upload result, optionally
// uploading to the remote host. A nil uploader or an upload failure still
// yields a usable local result.
func IngestImageData(ctx context.Context, data []byte, uploader ImageUploader) (domain.UploadImageResult, error) {
	jpgData, err := convertImageToJpg(data)
	if err != nil {
		return domain.UploadImageResult{}, err
	}

	result := domain.UploadImageResult{
		Base64URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpgData),
	}
	if uploader != nil {
		remoteURL, err := uploader.UploadImage(ctx, jpgData)
		if err != nil {
			log.Warn().Err(err).Msg("Remote image upload failed, keeping local copy only")
		} else {
			result.BingURL = remoteURL
		}
	}
	return result, nil
}

// IngestImageFile ingests an image from disk. An empty path is a canceled
// pick.
func IngestImageFile(ctx context.Context, path string, uploader ImageUploader) (domain.UploadImageResult, error) {
	if path == "" {
		return domain.UploadImageResult{Canceled: true}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadImageResult{}, err
	}
	return IngestImageData(ctx, data, uploader)
}

// IngestImageBase64 ingests an image from a raw base64 string.
func IngestImageBase64(ctx context.Context, rawBase64 string, uploader ImageUploader) (domain.UploadImageResult, error) {
	data, err := base64.StdEncoding.DecodeString(rawBase64)
	if err != nil {
		return domain.UploadImageResult{}, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return IngestImageData(ctx, data, uploader)
}

// NewImageReference wraps an upload result as an attachable data reference.
func NewImageReference(result domain.UploadImageResult) domain.DataReference {
	return domain.DataReference{
		UUID: uuid.NewString(),
		Type: domain.DataReferenceTypeImage,
		Data: domain.ImagePayload{Base64URL: result.Base64URL, RemoteURL: result.BingURL},
	}
}
