package update

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker(t *testing.T, current string, responseBody string, status int) *Checker {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, responseBody)
	}))
	t.Cleanup(server.Close)

	checker := NewChecker()
	checker.releasesURL = server.URL
	checker.currentVersion = current
	return checker
}

func TestCheckNeedsUpdate(t *testing.T) {
	checker := newTestChecker(t, "0.4.0",
		`[{"tag_name": "v0.5.0", "html_url": "https://example.com/release", "body": "notes"}]`,
		http.StatusOK)

	result, err := checker.Check(context.Background())
	require.NoError(t, err)

	assert.True(t, result.NeedUpdate)
	assert.Equal(t, "0.4.0", result.CurrentVersion)
	assert.Equal(t, "0.5.0", result.LatestVersion)
	assert.Equal(t, "https://example.com/release", result.ReleaseURL)
	assert.Equal(t, "notes", result.ReleaseNote)
}

func TestCheckUpToDate(t *testing.T) {
	checker := newTestChecker(t, "0.5.0", `[{"tag_name": "v0.5.0"}]`, http.StatusOK)

	result, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.NeedUpdate)
}

func TestCheckNewerLocalVersion(t *testing.T) {
	checker := newTestChecker(t, "0.6.0-dev", `[{"tag_name": "v0.5.0"}]`, http.StatusOK)

	result, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, result.NeedUpdate)
}

func TestCheckNoReleases(t *testing.T) {
	checker := newTestChecker(t, "0.4.0", `[]`, http.StatusOK)
	_, err := checker.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckServerError(t *testing.T) {
	checker := newTestChecker(t, "0.4.0", `oops`, http.StatusBadGateway)
	_, err := checker.Check(context.Background())
	assert.Error(t, err)
}
