package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// Default configuration values.
const (
	// DefaultReleasesURL is the release manifest endpoint queried when no
	// override is configured.
	DefaultReleasesURL = "https://get.burndown.dev/releases/latest.json"
	// DefaultTimeout bounds the release check so a slow endpoint can never
	// stall application startup.
	DefaultTimeout = 2 * time.Second
)

// Error variables for specific error conditions.
var (
	ErrNetworkFailure  = fmt.Errorf("network request failed")
	ErrRateLimited     = fmt.Errorf("rate limited by release endpoint")
	ErrManifestInvalid = fmt.Errorf("invalid release manifest")
)

// Asset represents a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
}

// Manifest describes a published release. It is fetched read-only from the
// releases endpoint and never mutated after decoding.
type Manifest struct {
	Version     string    `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	Prerelease  bool      `json:"prerelease"`
	Assets      []Asset   `json:"assets"`
	Body        string    `json:"body"`
}

// Availability is the result of a release check.
type Availability struct {
	HasUpdate bool
	Manifest  *Manifest
	// Latest is the parsed manifest version; zero when HasUpdate is false.
	Latest Version
	// PlatformAsset is the single asset matching this platform; nil when
	// HasUpdate is false.
	PlatformAsset *Asset
	CheckedAt     time.Time
}

// Checker queries the release endpoint and decides whether a newer version
// is available for this platform.
type Checker struct {
	releasesURL    string
	skippedVersion string
	httpClient     *http.Client
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHTTPClient sets a custom HTTP client for the checker.
func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		c.httpClient.Timeout = timeout
	}
}

// WithSkippedVersion suppresses a specific manifest version the user chose
// to skip. A newer manifest version clears the suppression naturally.
func WithSkippedVersion(version string) CheckerOption {
	return func(c *Checker) {
		c.skippedVersion = strings.TrimSpace(version)
	}
}

// SkipVersion suppresses offers for the given version on later checks. Call
// only while no check is in flight.
func (c *Checker) SkipVersion(version string) {
	c.skippedVersion = strings.TrimSpace(version)
}

// NewChecker creates a checker against the given releases endpoint.
// An empty URL selects DefaultReleasesURL.
func NewChecker(releasesURL string, opts ...CheckerOption) *Checker {
	if strings.TrimSpace(releasesURL) == "" {
		releasesURL = DefaultReleasesURL
	}
	c := &Checker{
		releasesURL: releasesURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check fetches the release manifest and compares it to the current version.
// Development builds and unparseable current versions report no update
// without error. Network, timeout, and manifest failures return an error
// alongside HasUpdate=false; callers record the error but never treat it as
// fatal.
func (c *Checker) Check(ctx context.Context, currentVersion string) (Availability, error) {
	result := Availability{CheckedAt: time.Now()}

	if currentVersion == "" || currentVersion == "dev" || currentVersion == "development" {
		return result, nil
	}

	current, err := ParseVersion(currentVersion)
	if err != nil {
		// Unparseable running version is almost certainly a source build.
		return result, nil
	}

	manifest, err := c.fetchManifest(ctx)
	if err != nil {
		return result, err
	}

	latest, err := ParseVersion(manifest.Version)
	if err != nil {
		return result, fmt.Errorf("%w: version %q: %v", ErrManifestInvalid, manifest.Version, err)
	}

	result.Manifest = manifest

	if manifest.Prerelease && !current.IsPrerelease() {
		return result, nil
	}
	if !IsNewer(latest, current) {
		return result, nil
	}
	if c.skippedVersion != "" {
		if skipped, err := ParseVersion(c.skippedVersion); err == nil && latest.Equal(skipped) {
			return result, nil
		}
	}

	asset := findPlatformAsset(manifest.Assets)
	if asset == nil {
		// A newer release without a matching asset is no update for us.
		return result, nil
	}

	result.HasUpdate = true
	result.Latest = latest
	result.PlatformAsset = asset
	return result, nil
}

// fetchManifest fetches the release manifest from the endpoint.
func (c *Checker) fetchManifest(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releasesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "burndown-update-checker")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNetworkFailure, resp.StatusCode)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if strings.TrimSpace(manifest.Version) == "" {
		return nil, fmt.Errorf("%w: missing version", ErrManifestInvalid)
	}

	return &manifest, nil
}

// findPlatformAsset finds the single asset matching the current platform.
func findPlatformAsset(assets []Asset) *Asset {
	patterns := buildAssetPatterns(runtime.GOOS, runtime.GOARCH)

	for i := range assets {
		name := strings.ToLower(assets[i].Name)
		for _, pattern := range patterns {
			if strings.Contains(name, pattern) {
				return &assets[i]
			}
		}
	}

	return nil
}

// buildAssetPatterns returns patterns to match for the given OS/arch.
func buildAssetPatterns(os, arch string) []string {
	// Normalize arch names
	archPatterns := []string{arch}
	switch arch {
	case "amd64":
		archPatterns = append(archPatterns, "x86_64", "x64")
	case "arm64":
		archPatterns = append(archPatterns, "aarch64")
	}

	// Normalize OS names
	osPatterns := []string{os}
	switch os {
	case "darwin":
		osPatterns = append(osPatterns, "macos", "osx")
	case "windows":
		osPatterns = append(osPatterns, "win64", "win")
	}

	// Build all combinations
	var patterns []string
	for _, o := range osPatterns {
		for _, a := range archPatterns {
			patterns = append(patterns, o+"_"+a, o+"-"+a, a+"_"+o, a+"-"+o)
		}
	}

	return patterns
}
