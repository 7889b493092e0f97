package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/metrics"
	"github.com/filesearch-rag/backend/pkg/circuitbreaker"
	"github.com/filesearch-rag/backend/pkg/logger"
	"github.com/filesearch-rag/backend/pkg/retry"
)

// ErrStoreNotFound is returned by ResolveStore when no store matches
// the given display name.
var ErrStoreNotFound = errors.New("store not found")

const storePrefix = "fileSearchStores/"

type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	Retry        retry.Config
	Breaker      circuitbreaker.Config
}

// Client talks to the managed file search provider: store CRUD,
// document upload with operation polling, and grounded generation.
// It is constructed once at startup and shared read-only across
// request handlers.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	cb           *circuitbreaker.CircuitBreaker
	retryConfig  retry.Config
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 5 * time.Minute
	}

	cb := circuitbreaker.NewCircuitBreaker("provider", cfg.Breaker)

	logger.Info("Provider client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cb:           cb,
		retryConfig:  cfg.Retry,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
}

func (c *Client) CreateStore(ctx context.Context, displayName string) (string, error) {
	var store StoreInfo
	err := c.execute(ctx, "create_store", func() error {
		return c.doJSON(ctx, http.MethodPost, "/v1beta/fileSearchStores",
			createStoreRequest{DisplayName: displayName}, &store)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create store %q: %w", displayName, err)
	}

	logger.Info("Created file search store",
		zap.String("display_name", displayName),
		zap.String("store_id", store.Name),
	)

	return store.Name, nil
}

func (c *Client) ListStores(ctx context.Context) ([]StoreInfo, error) {
	var stores []StoreInfo
	pageToken := ""

	for {
		path := "/v1beta/fileSearchStores?pageSize=100"
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page listStoresResponse
		err := c.execute(ctx, "list_stores", func() error {
			return c.doJSON(ctx, http.MethodGet, path, nil, &page)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list stores: %w", err)
		}

		stores = append(stores, page.FileSearchStores...)
		if page.NextPageToken == "" {
			return stores, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) GetStore(ctx context.Context, resourceID string) (*StoreInfo, error) {
	var store StoreInfo
	err := c.execute(ctx, "get_store", func() error {
		return c.doJSON(ctx, http.MethodGet, "/v1beta/"+resourceID, nil, &store)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get store %q: %w", resourceID, err)
	}
	return &store, nil
}

func (c *Client) DeleteStore(ctx context.Context, resourceID string, force bool) error {
	path := "/v1beta/" + resourceID
	if force {
		path += "?force=true"
	}

	err := c.execute(ctx, "delete_store", func() error {
		return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to delete store %q: %w", resourceID, err)
	}

	logger.Info("Deleted file search store", zap.String("store_id", resourceID))
	return nil
}

// ResolveStore maps a human-chosen display name to the store's
// resource id. Names already carrying the resource prefix pass through
// without a round-trip. The mapping is looked up per call and never
// persisted locally.
func (c *Client) ResolveStore(ctx context.Context, displayName string) (string, error) {
	if strings.HasPrefix(displayName, storePrefix) {
		return displayName, nil
	}

	stores, err := c.ListStores(ctx)
	if err != nil {
		return "", err
	}

	for _, store := range stores {
		if store.DisplayName == displayName || store.Name == displayName {
			return store.Name, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrStoreNotFound, displayName)
}

// Upload sends a local file into a store and returns the ingestion
// operation. Callers poll it via WaitForOperation.
func (c *Client) Upload(ctx context.Context, filePath, storeID, displayName string, chunking *ChunkingConfig) (*Operation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filePath, err)
	}

	if displayName == "" {
		displayName = filepath.Base(filePath)
	}

	meta := map[string]any{"displayName": displayName}
	if chunking != nil {
		meta["chunkingConfig"] = chunking
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upload metadata: %w", err)
	}

	var op Operation
	err = c.execute(ctx, "upload", func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		metaHeader := textproto.MIMEHeader{}
		metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
		metaPart, err := writer.CreatePart(metaHeader)
		if err != nil {
			return err
		}
		if _, err := metaPart.Write(metaJSON); err != nil {
			return err
		}

		fileHeader := textproto.MIMEHeader{}
		fileHeader.Set("Content-Type", "application/octet-stream")
		filePart, err := writer.CreatePart(fileHeader)
		if err != nil {
			return err
		}
		if _, err := filePart.Write(data); err != nil {
			return err
		}
		if err := writer.Close(); err != nil {
			return err
		}

		uploadURL := fmt.Sprintf("%s/upload/v1beta/%s:uploadToFileSearchStore", c.baseURL, storeID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
		req.Header.Set("X-Goog-Upload-Protocol", "multipart")
		req.Header.Set("x-goog-api-key", c.apiKey)

		return c.send(req, &op)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %q: %w", displayName, err)
	}

	logger.Info("Upload accepted",
		zap.String("display_name", displayName),
		zap.String("operation", op.Name),
	)

	return &op, nil
}

// WaitForOperation polls an operation until it completes. The loop is
// bounded by the configured poll timeout, backs off between polls, and
// honors caller cancellation.
func (c *Client) WaitForOperation(ctx context.Context, op *Operation) (*Operation, error) {
	if op == nil {
		return nil, fmt.Errorf("nil operation")
	}
	if op.Done {
		return checkOperation(op)
	}

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	delay := c.pollInterval
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("operation %q did not complete: %w", op.Name, ctx.Err())
		case <-time.After(delay):
		}

		var current Operation
		err := c.execute(ctx, "get_operation", func() error {
			return c.doJSON(ctx, http.MethodGet, "/v1beta/"+op.Name, nil, &current)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation %q: %w", op.Name, err)
		}

		if current.Done {
			return checkOperation(&current)
		}

		logger.Debug("Upload still processing",
			zap.String("operation", current.Name),
			zap.Duration("next_poll", delay),
		)

		delay = delay * 3 / 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

func checkOperation(op *Operation) (*Operation, error) {
	if op.Error != nil {
		return nil, fmt.Errorf("operation %q failed: %s (code %d)", op.Name, op.Error.Message, op.Error.Code)
	}
	return op, nil
}

// Generate issues a single-candidate generation call grounded on the
// given stores.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateContentResponse, error) {
	body := generateContentBody{
		Contents: []wireContent{
			{Role: "user", Parts: []Part{{Text: req.Prompt}}},
		},
		GenerationConfig: &wireGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
			CandidateCount:  1,
		},
	}

	if req.SystemInstruction != "" {
		body.SystemInstruction = &wireContent{Parts: []Part{{Text: req.SystemInstruction}}}
	}

	if len(req.StoreNames) > 0 {
		body.Tools = []wireTool{
			{FileSearch: &wireFileSearch{FileSearchStoreNames: req.StoreNames}},
		}
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", req.Model)

	var resp GenerateContentResponse
	err := c.execute(ctx, "generate", func() error {
		return c.doJSON(ctx, http.MethodPost, path, body, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	logger.Debug("Generation completed",
		zap.String("model", req.Model),
		zap.Int("candidates", len(resp.Candidates)),
	)

	return &resp, nil
}

// execute wraps a provider round-trip in the circuit breaker and the
// configured retry policy, and records its duration.
func (c *Client) execute(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, fn)
	})
	metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(operation).Inc()
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
