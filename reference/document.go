package reference

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"parley/domain"

	"github.com/google/uuid"
)

// DocumentReader extracts plain text from one document format.
type DocumentReader interface {
	Read(path string) (string, error)
	WillSkipPostprocess() bool
}

// PlainDocumentReader handles text formats that need no extraction.
type PlainDocumentReader struct{}

func (r PlainDocumentReader) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r PlainDocumentReader) WillSkipPostprocess() bool {
	return false
}

var documentReaders = map[string]DocumentReader{
	".txt": PlainDocumentReader{},
	".md":  PlainDocumentReader{},
}

// SupportedDocumentExtensions lists the readable document formats.
func SupportedDocumentExtensions() []string {
	exts := make([]string, 0, len(documentReaders))
	for ext := range documentReaders {
		exts = append(exts, ext)
	}
	return exts
}

var crLineRe = regexp.MustCompile("(?m)^\r+")
var multiNewlineRe = regexp.MustCompile("\n+")

// normalizeDocumentText collapses whitespace and JSON-escapes the text so it
// embeds safely into a single context line.
func normalizeDocumentText(text string) (string, error) {
	text = strings.ReplaceAll(text, "\r", "")
	text = crLineRe.ReplaceAllString(text, "")
	text = multiNewlineRe.ReplaceAllString(text, "\n")
	v, err := json.Marshal(&text)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// ReadDocument ingests a document file into an upload result. An empty path
// is a canceled pick, reported as an outcome rather than an error.
func ReadDocument(path string) (domain.UploadDocumentResult, error) {
	if path == "" {
		return domain.UploadDocumentResult{Canceled: true}, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	reader, ok := documentReaders[ext]
	if !ok {
		return domain.UploadDocumentResult{}, fmt.Errorf("document type %s not supported", ext)
	}

	text, err := reader.Read(path)
	if err != nil {
		return domain.UploadDocumentResult{}, err
	}
	if !reader.WillSkipPostprocess() {
		text, err = normalizeDocumentText(text)
		if err != nil {
			return domain.UploadDocumentResult{}, err
		}
	}
	return domain.UploadDocumentResult{Text: text, Ext: ext}, nil
}

// NewDocumentReference wraps extracted document text as an attachable data
// reference.
func NewDocumentReference(text, ext string) domain.DataReference {
	return domain.DataReference{
		UUID: uuid.NewString(),
		Type: domain.DataReferenceTypeDocument,
		Data: domain.DocumentPayload{Text: text, Ext: ext},
	}
}
