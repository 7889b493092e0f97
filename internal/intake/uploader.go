package intake

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/metrics"
	"github.com/filesearch-rag/backend/internal/provider"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// StoreClient is the slice of the provider client the uploader needs.
type StoreClient interface {
	Upload(ctx context.Context, filePath, storeID, displayName string, chunking *provider.ChunkingConfig) (*provider.Operation, error)
	WaitForOperation(ctx context.Context, op *provider.Operation) (*provider.Operation, error)
}

// Uploader validates documents and forwards them to the external
// store, waiting for ingestion to complete.
type Uploader struct {
	client       StoreClient
	validator    *Validator
	chunkTokens  int
	chunkOverlap int
	httpClient   *http.Client
}

func NewUploader(client StoreClient, validator *Validator, chunkTokens, chunkOverlap int) *Uploader {
	return &Uploader{
		client:       client,
		validator:    validator,
		chunkTokens:  chunkTokens,
		chunkOverlap: chunkOverlap,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

// ChunkingConfig returns the configured whitespace chunking settings,
// or nil to accept the provider defaults.
func (u *Uploader) ChunkingConfig(custom bool) *provider.ChunkingConfig {
	if !custom {
		return nil
	}
	return &provider.ChunkingConfig{
		WhiteSpaceConfig: &provider.WhiteSpaceConfig{
			MaxTokensPerChunk: u.chunkTokens,
			MaxOverlapTokens:  u.chunkOverlap,
		},
	}
}

// UploadDocument validates then uploads a single file and blocks until
// the ingestion operation completes. Returns the operation name.
func (u *Uploader) UploadDocument(ctx context.Context, path, storeID, displayName string, customChunking bool) (string, error) {
	ok, reason := u.validator.Validate(path)
	if !ok {
		metrics.UploadTotal.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%s", reason)
	}

	if displayName == "" {
		displayName = deriveDisplayName(path)
	}

	op, err := u.client.Upload(ctx, path, storeID, displayName, u.ChunkingConfig(customChunking))
	if err != nil {
		metrics.UploadTotal.WithLabelValues("error").Inc()
		return "", err
	}

	op, err = u.client.WaitForOperation(ctx, op)
	if err != nil {
		metrics.UploadTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.UploadTotal.WithLabelValues("success").Inc()
	metrics.DocumentsUploaded.Inc()

	logger.Info("Document uploaded",
		zap.String("display_name", displayName),
		zap.String("operation", op.Name),
	)

	return op.Name, nil
}

// DirectoryReport summarizes a directory upload. Partial success is
// the expected outcome, not an error state.
type DirectoryReport struct {
	Uploaded   int               `json:"uploaded"`
	Failed     int               `json:"failed"`
	Skipped    map[string]string `json:"skipped,omitempty"`
	Operations []string          `json:"operations,omitempty"`
}

// UploadDirectory walks a directory, validates every supported file,
// and uploads the valid ones. Invalid files are skipped with their
// reasons recorded; one upload failure never aborts the rest.
func (u *Uploader) UploadDirectory(ctx context.Context, dir, storeID string, recursive, customChunking bool) (*DirectoryReport, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory not found or not a directory: %s", dir)
	}

	var candidates []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupported(path) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}

	if len(candidates) == 0 {
		logger.Warn("No supported files found", zap.String("dir", dir))
		return &DirectoryReport{Skipped: map[string]string{}}, nil
	}

	logger.Info("Found files to upload", zap.Int("count", len(candidates)), zap.String("dir", dir))

	report := &DirectoryReport{Skipped: map[string]string{}}
	validation := u.validator.BatchValidate(candidates)

	for _, path := range candidates {
		result := validation[path]
		if !result.OK {
			logger.Warn("Skipping invalid file",
				zap.String("path", path),
				zap.String("reason", result.Reason),
			)
			report.Skipped[path] = result.Reason
			continue
		}

		displayName := path
		if rel, relErr := filepath.Rel(dir, path); relErr == nil {
			displayName = rel
		}

		opName, err := u.UploadDocument(ctx, path, storeID, displayName, customChunking)
		if err != nil {
			logger.Error("Failed to upload file", zap.String("path", path), zap.Error(err))
			report.Failed++
			continue
		}

		report.Uploaded++
		report.Operations = append(report.Operations, opName)
	}

	logger.Info("Directory upload finished",
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", len(report.Skipped)),
	)

	return report, nil
}

// UploadFromURL downloads a document to a temporary file, uploads it,
// and removes the temporary file on every exit path.
func (u *Uploader) UploadFromURL(ctx context.Context, rawURL, storeID, displayName string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download of %s returned status %d", rawURL, resp.StatusCode)
	}

	base := filepath.Base(parsed.Path)
	if base == "." || base == "/" {
		base = "download"
	}

	tmp, err := os.CreateTemp("", "upload-*-"+base)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if displayName == "" {
		displayName = base
	}

	return u.UploadDocument(ctx, tmpPath, storeID, displayName, false)
}

// deriveDisplayName prefers the HTML document title for web pages and
// falls back to the file name.
func deriveDisplayName(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		if title := htmlTitle(path); title != "" {
			return title
		}
	}
	return filepath.Base(path)
}

func htmlTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}
