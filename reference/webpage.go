package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"parley/domain"

	"github.com/google/uuid"
)

const readerProxyPrefix = "https://r.jina.ai/"

// FetchWebpage retrieves a page's content in readable text form through the
// reader proxy.
func FetchWebpage(ctx context.Context, pageURL string, proxy string) (string, error) {
	client, err := newHTTPClient(proxy, 15*time.Second)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readerProxyPrefix+pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("error fetching url: %d: %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}

// NewWebpageReference wraps fetched page content as an attachable data
// reference.
func NewWebpageReference(pageURL, content string) domain.DataReference {
	return domain.DataReference{
		UUID: uuid.NewString(),
		Type: domain.DataReferenceTypeWebpage,
		Data: domain.WebpagePayload{URL: pageURL, Content: content},
	}
}
