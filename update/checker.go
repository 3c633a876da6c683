package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/common"
	"parley/domain"

	goversion "github.com/hashicorp/go-version"
)

const defaultReleasesURL = "https://api.github.com/repos/parley-chat/parley/releases"

type githubRelease struct {
	TagName string `json:"tag_name"`
	HtmlUrl string `json:"html_url"`
	Body    string `json:"body"`
}

// Checker compares the running version against the latest published release.
type Checker struct {
	releasesURL    string
	currentVersion string
	httpClient     *http.Client
}

func NewChecker() *Checker {
	return &Checker{
		releasesURL:    defaultReleasesURL,
		currentVersion: common.Version,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Checker) Check(ctx context.Context) (domain.CheckUpdateResult, error) {
	var empty domain.CheckUpdateResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releasesURL, nil)
	if err != nil {
		return empty, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return empty, fmt.Errorf("release listing returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, err
	}

	var releases []githubRelease
	if err := json.Unmarshal(body, &releases); err != nil {
		return empty, err
	}
	if len(releases) == 0 {
		return empty, errors.New("no release found")
	}

	currentVersion, err := goversion.NewVersion(strings.TrimSpace(c.currentVersion))
	if err != nil {
		return empty, err
	}
	latestVersion, err := goversion.NewVersion(strings.TrimPrefix(releases[0].TagName, "v"))
	if err != nil {
		return empty, err
	}

	return domain.CheckUpdateResult{
		NeedUpdate:     latestVersion.GreaterThan(currentVersion),
		CurrentVersion: currentVersion.String(),
		LatestVersion:  latestVersion.String(),
		ReleaseURL:     releases[0].HtmlUrl,
		ReleaseNote:    releases[0].Body,
	}, nil
}
