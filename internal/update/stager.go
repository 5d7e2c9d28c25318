package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"burndown/internal/install"
)

// Error variables for staging-specific errors.
var (
	ErrDownloadFailed   = fmt.Errorf("download failed")
	ErrExtractionFailed = fmt.Errorf("extraction failed")
	ErrStageIncomplete  = fmt.Errorf("staged update is incomplete")
)

// StagePrefix names staging directories so stale ones can be swept at startup.
const StagePrefix = "burndown-stage-"

// ProgressFunc receives download progress. total is -1 when the size is unknown.
type ProgressFunc func(received, total int64)

// StagedUpdate describes a fully downloaded and verified update payload.
type StagedUpdate struct {
	// Dir is the staging directory holding the extracted files.
	Dir string
	// Files lists the staged regular files relative to Dir, sorted.
	Files []string
}

// Stager downloads a release asset and extracts it into a staging directory.
type Stager struct {
	stagingRoot string
	httpClient  *http.Client
}

// StagerOption configures a Stager.
type StagerOption func(*Stager)

// WithStagerHTTPClient sets a custom HTTP client for downloads.
func WithStagerHTTPClient(client *http.Client) StagerOption {
	return func(s *Stager) {
		s.httpClient = client
	}
}

// WithStagingRoot overrides the parent directory for staging directories.
func WithStagingRoot(root string) StagerOption {
	return func(s *Stager) {
		s.stagingRoot = root
	}
}

// NewStager creates a stager. Downloads have no fixed timeout; cancellation
// comes from the caller's context.
func NewStager(opts ...StagerOption) *Stager {
	s := &Stager{
		stagingRoot: os.TempDir(),
		httpClient:  &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage downloads the asset, extracts it, and verifies the payload.
// The staging directory is removed on any failure so no partial download
// survives. onProgress may be nil.
func (s *Stager) Stage(ctx context.Context, asset Asset, onProgress ProgressFunc) (StagedUpdate, error) {
	stageDir, err := os.MkdirTemp(s.stagingRoot, StagePrefix+"*")
	if err != nil {
		return StagedUpdate{}, fmt.Errorf("create staging directory: %w", err)
	}

	staged, err := s.stageInto(ctx, stageDir, asset, onProgress)
	if err != nil {
		_ = os.RemoveAll(stageDir)
		return StagedUpdate{}, err
	}
	return staged, nil
}

func (s *Stager) stageInto(ctx context.Context, stageDir string, asset Asset, onProgress ProgressFunc) (StagedUpdate, error) {
	archivePath, err := s.download(ctx, asset, onProgress)
	if err != nil {
		return StagedUpdate{}, err
	}
	defer func() { _ = os.Remove(archivePath) }()

	if err := extractArchive(archivePath, asset, stageDir); err != nil {
		return StagedUpdate{}, err
	}
	if err := flattenSingleRoot(stageDir); err != nil {
		return StagedUpdate{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	files, err := listStagedFiles(stageDir)
	if err != nil {
		return StagedUpdate{}, fmt.Errorf("%w: %v", ErrStageIncomplete, err)
	}
	if err := verifyStaged(files); err != nil {
		return StagedUpdate{}, err
	}

	return StagedUpdate{Dir: stageDir, Files: files}, nil
}

// download streams the asset to a temporary file next to the staging
// directories and reports progress as bytes arrive.
func (s *Stager) download(ctx context.Context, asset Asset, onProgress ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", "burndown-updater")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	total := asset.Size
	if total <= 0 {
		total = resp.ContentLength
	}

	out, err := os.CreateTemp(s.stagingRoot, "burndown-dl-*")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	archivePath := out.Name()

	reader := &progressReader{r: resp.Body, total: total, onProgress: onProgress}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(archivePath)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	return archivePath, nil
}

// progressReader counts bytes as they pass through and invokes the callback.
type progressReader struct {
	r          io.Reader
	total      int64
	received   int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.received, p.total)
		}
	}
	return n, err
}

// extractArchive dispatches on the asset name, falling back to content type.
func extractArchive(archivePath string, asset Asset, destDir string) error {
	name := strings.ToLower(asset.Name)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(archivePath, destDir)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return extractTarGz(archivePath, destDir)
	}

	switch asset.ContentType {
	case "application/zip":
		return extractZip(archivePath, destDir)
	case "application/gzip", "application/x-gzip":
		return extractTarGz(archivePath, destDir)
	}

	return fmt.Errorf("%w: unsupported archive %q", ErrExtractionFailed, asset.Name)
}

// extractZip extracts a .zip archive, preserving relative paths and file modes.
func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		destPath, err := safeJoin(destDir, f.Name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		err = writeStagedFile(destPath, rc, f.Mode())
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
	}
	return nil
}

// extractTarGz extracts a .tar.gz archive, preserving relative paths and modes.
func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer func() { _ = f.Close() }()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		destPath, err := safeJoin(destDir, header.Name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
			if err := writeStagedFile(destPath, tr, header.FileInfo().Mode()); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
		}
	}
	return nil
}

func writeStagedFile(path string, r io.Reader, mode os.FileMode) error {
	//nolint:gosec // G304: path was sanitized against the staging directory
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	//nolint:gosec // G110: known release assets, not attacker-supplied archives
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins an archive entry name under dir, rejecting path traversal.
func safeJoin(dir, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path %q in archive", name)
	}
	joined := filepath.Join(dir, name)
	if joined != dir && !strings.HasPrefix(joined, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes staging directory", name)
	}
	return joined, nil
}

// flattenSingleRoot hoists the contents of a lone wrapper directory, the
// layout release archives commonly use, up into the staging directory.
func flattenSingleRoot(stageDir string) error {
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	wrapper := filepath.Join(stageDir, entries[0].Name())
	inner, err := os.ReadDir(wrapper)
	if err != nil {
		return err
	}
	for _, e := range inner {
		if err := os.Rename(filepath.Join(wrapper, e.Name()), filepath.Join(stageDir, e.Name())); err != nil {
			return err
		}
	}
	return os.Remove(wrapper)
}

// listStagedFiles returns the relative paths of all regular files under dir.
func listStagedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// verifyStaged checks the payload structurally: it must contain the
// application executable. No checksum is involved.
func verifyStaged(files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: archive contained no files", ErrStageIncomplete)
	}
	want := install.AppBinaryName()
	for _, f := range files {
		if f == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not found in archive", ErrStageIncomplete, want)
}

// RemoveStaleStaging deletes leftover staging directories under root. Call it
// at startup, before any new download begins, so a crashed session's partial
// payloads do not accumulate. Returns the number of directories removed.
func RemoveStaleStaging(root string) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), StagePrefix) {
			continue
		}
		if os.RemoveAll(filepath.Join(root, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
