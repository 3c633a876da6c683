package reference

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// newHTTPClient builds a client honoring the configured proxy. An empty proxy
// uses the environment settings.
func newHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
