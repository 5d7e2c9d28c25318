package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

// platformAssetName builds an asset name the running platform will match.
func platformAssetName(version string) string {
	return fmt.Sprintf("burndown_%s_%s_%s.zip", version, runtime.GOOS, runtime.GOARCH)
}

func writeManifest(w http.ResponseWriter, manifest Manifest) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(manifest)
}

func manifestServer(t *testing.T, manifest Manifest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeManifest(w, manifest)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewChecker(t *testing.T) {
	c := NewChecker("")
	if c.releasesURL != DefaultReleasesURL {
		t.Errorf("releasesURL = %q, want default %q", c.releasesURL, DefaultReleasesURL)
	}
	if c.httpClient == nil {
		t.Error("httpClient should not be nil")
	}

	c = NewChecker("https://example.com/releases.json")
	if c.releasesURL != "https://example.com/releases.json" {
		t.Errorf("releasesURL = %q, want override", c.releasesURL)
	}
}

func TestNewCheckerWithOptions(t *testing.T) {
	customClient := &http.Client{Timeout: 10 * time.Second}
	c := NewChecker("", WithHTTPClient(customClient))

	if c.httpClient != customClient {
		t.Error("custom HTTP client not applied")
	}

	c = NewChecker("", WithSkippedVersion(" v1.3.0 "))
	if c.skippedVersion != "v1.3.0" {
		t.Errorf("skippedVersion = %q, want %q", c.skippedVersion, "v1.3.0")
	}
}

func TestCheckerCheck(t *testing.T) {
	manifest := Manifest{
		Version:     "1.3.0",
		PublishedAt: time.Now(),
		Body:        "Release notes",
		Assets: []Asset{
			{Name: platformAssetName("1.3.0"), BrowserDownloadURL: "https://example.com/archive.zip", Size: 4096},
			{Name: "checksums.txt", BrowserDownloadURL: "https://example.com/checksums"},
		},
	}
	server := manifestServer(t, manifest)

	c := NewChecker(server.URL)
	result, err := c.Check(context.Background(), "1.2.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	if !result.HasUpdate {
		t.Fatal("HasUpdate should be true when manifest version > current")
	}
	if result.Latest.String() != "v1.3.0" {
		t.Errorf("Latest = %s, want v1.3.0", result.Latest)
	}
	if result.Manifest == nil || result.Manifest.Body != "Release notes" {
		t.Error("Manifest should carry release notes")
	}
	if result.PlatformAsset == nil {
		t.Fatal("PlatformAsset should be set when an update is available")
	}
	if result.PlatformAsset.BrowserDownloadURL != "https://example.com/archive.zip" {
		t.Errorf("PlatformAsset URL = %q, want archive URL", result.PlatformAsset.BrowserDownloadURL)
	}
	if result.CheckedAt.IsZero() {
		t.Error("CheckedAt should be populated")
	}
}

func TestCheckerCheckNoUpdate(t *testing.T) {
	manifest := Manifest{
		Version:     "1.9.0",
		PublishedAt: time.Now(),
		Assets:      []Asset{{Name: platformAssetName("1.9.0"), BrowserDownloadURL: "https://example.com/archive.zip"}},
	}
	server := manifestServer(t, manifest)

	c := NewChecker(server.URL)
	result, err := c.Check(context.Background(), "2.0.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	if result.HasUpdate {
		t.Error("HasUpdate should be false when manifest version < current")
	}
}

func TestCheckerCheckDevVersion(t *testing.T) {
	c := NewChecker("http://127.0.0.1:0/unreachable")

	// Dev builds skip the check entirely; no request is made.
	for _, version := range []string{"dev", "development", ""} {
		result, err := c.Check(context.Background(), version)
		if err != nil {
			t.Errorf("Check(%q) unexpected error: %v", version, err)
		}
		if result.HasUpdate {
			t.Errorf("Check(%q) should report no update for dev build", version)
		}
	}
}

func TestCheckerCheckInvalidCurrentVersion(t *testing.T) {
	c := NewChecker("http://127.0.0.1:0/unreachable")

	result, err := c.Check(context.Background(), "not-a-version")
	if err != nil {
		t.Errorf("Check() unexpected error: %v", err)
	}
	if result.HasUpdate {
		t.Error("Check() should report no update for unparseable version")
	}
}

func TestCheckerCheckRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewChecker(server.URL)
	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Check() error = %v, want ErrRateLimited", err)
	}
}

func TestCheckerCheckServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewChecker(server.URL)
	result, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrNetworkFailure) {
		t.Errorf("Check() error = %v, want ErrNetworkFailure", err)
	}
	if result.HasUpdate {
		t.Error("failed check must report no update")
	}
}

func TestCheckerCheckTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	c := NewChecker(server.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrNetworkFailure) {
		t.Errorf("Check() error = %v, want ErrNetworkFailure on timeout", err)
	}
}

func TestCheckerCheckMalformedManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewChecker(server.URL)
	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Errorf("Check() error = %v, want ErrManifestInvalid", err)
	}
}

func TestCheckerCheckMissingVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	c := NewChecker(server.URL)
	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Errorf("Check() error = %v, want ErrManifestInvalid", err)
	}
}

func TestCheckerCheckUnparseableManifestVersion(t *testing.T) {
	server := manifestServer(t, Manifest{Version: "latest-and-greatest"})

	c := NewChecker(server.URL)
	_, err := c.Check(context.Background(), "1.0.0")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Errorf("Check() error = %v, want ErrManifestInvalid", err)
	}
}

func TestCheckerCheckPrereleaseManifest(t *testing.T) {
	manifest := Manifest{
		Version:    "1.4.0-beta.1",
		Prerelease: true,
		Assets:     []Asset{{Name: platformAssetName("1.4.0-beta.1"), BrowserDownloadURL: "https://example.com/archive.zip"}},
	}
	server := manifestServer(t, manifest)

	// A stable build ignores prerelease manifests.
	c := NewChecker(server.URL)
	result, err := c.Check(context.Background(), "1.2.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.HasUpdate {
		t.Error("stable build should ignore prerelease manifest")
	}

	// A prerelease build follows them.
	result, err = c.Check(context.Background(), "1.4.0-alpha.2")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.HasUpdate {
		t.Error("prerelease build should see newer prerelease manifest")
	}
}

func TestCheckerCheckSkippedVersion(t *testing.T) {
	manifest := Manifest{
		Version: "1.3.0",
		Assets:  []Asset{{Name: platformAssetName("1.3.0"), BrowserDownloadURL: "https://example.com/archive.zip"}},
	}
	server := manifestServer(t, manifest)

	c := NewChecker(server.URL, WithSkippedVersion("1.3.0"))
	result, err := c.Check(context.Background(), "1.2.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.HasUpdate {
		t.Error("skipped version should report no update")
	}

	// A version newer than the skip is offered again.
	newer := Manifest{
		Version: "1.4.0",
		Assets:  []Asset{{Name: platformAssetName("1.4.0"), BrowserDownloadURL: "https://example.com/archive.zip"}},
	}
	newerServer := manifestServer(t, newer)

	c = NewChecker(newerServer.URL, WithSkippedVersion("1.3.0"))
	result, err = c.Check(context.Background(), "1.2.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.HasUpdate {
		t.Error("version newer than the skip should be offered")
	}
}

func TestCheckerCheckNoMatchingAsset(t *testing.T) {
	manifest := Manifest{
		Version: "9.9.9",
		Assets: []Asset{
			{Name: "burndown_9.9.9_solaris_sparc64.zip", BrowserDownloadURL: "https://example.com/other"},
		},
	}
	server := manifestServer(t, manifest)

	c := NewChecker(server.URL)
	result, err := c.Check(context.Background(), "1.0.0")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.HasUpdate {
		t.Error("release without a compatible asset is not an update")
	}
}

func TestFindPlatformAsset(t *testing.T) {
	assets := []Asset{
		{Name: "checksums.txt", BrowserDownloadURL: "https://example.com/checksums"},
		{Name: platformAssetName("2.0.0"), BrowserDownloadURL: "https://example.com/match"},
	}

	asset := findPlatformAsset(assets)
	if asset == nil {
		t.Fatal("findPlatformAsset should match the platform asset")
	}
	if asset.BrowserDownloadURL != "https://example.com/match" {
		t.Errorf("matched asset URL = %q, want %q", asset.BrowserDownloadURL, "https://example.com/match")
	}

	if findPlatformAsset(nil) != nil {
		t.Error("findPlatformAsset(nil) should return nil")
	}
	if findPlatformAsset([]Asset{{Name: "readme.md"}}) != nil {
		t.Error("findPlatformAsset should return nil when nothing matches")
	}
}

func TestBuildAssetPatterns(t *testing.T) {
	patterns := buildAssetPatterns("windows", "amd64")
	if len(patterns) == 0 {
		t.Fatal("buildAssetPatterns should return patterns")
	}

	found := false
	for _, p := range patterns {
		if p == "windows_amd64" || p == "windows-amd64" {
			found = true
			break
		}
	}
	if !found {
		t.Error("patterns should contain windows_amd64 or windows-amd64")
	}
}
