package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/citation"
	"github.com/filesearch-rag/backend/internal/metrics"
	"github.com/filesearch-rag/backend/internal/provider"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// Provider is the slice of the external client the orchestrator needs.
type Provider interface {
	ResolveStore(ctx context.Context, displayName string) (string, error)
	Generate(ctx context.Context, req provider.GenerateRequest) (*provider.GenerateContentResponse, error)
}

// Result is the outcome of one query. It is constructed fresh per
// query, never mutated afterwards, and not persisted anywhere.
type Result struct {
	Answer            string              `json:"answer"`
	Citations         []citation.Citation `json:"citations"`
	ModelUsed         string              `json:"model_used"`
	Query             string              `json:"query"`
	GroundingMetadata map[string]any      `json:"grounding_metadata,omitempty"`
}

// Options tune a single generation call. Temperature and MaxTokens are
// passed through to the provider unclamped; it enforces its own
// bounds. A nil Temperature means unset, so an explicit zero is
// distinguishable and survives to the provider.
type Options struct {
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

const (
	defaultMaxTokens  = 1024
	defaultBatchDelay = time.Second
)

// Manager orchestrates grounded search: it resolves store display
// names, builds the retrieval-augmented generation request, and
// normalizes the provider response. Every failure degrades to a
// Result whose answer explains what went wrong; no method returns an
// error to the caller.
type Manager struct {
	provider   Provider
	model      string
	batchDelay time.Duration
}

func NewManager(p Provider, model string) *Manager {
	return &Manager{
		provider:   p,
		model:      model,
		batchDelay: defaultBatchDelay,
	}
}

func (m *Manager) SearchAndGenerate(ctx context.Context, query, storeName string, opts Options) *Result {
	start := time.Now()
	queryID := uuid.New().String()

	logger.Info("Processing search query",
		zap.String("query_id", queryID),
		zap.String("store", storeName),
		zap.String("query", truncate(query, 100)),
	)

	storeID, err := m.provider.ResolveStore(ctx, storeName)
	if err != nil {
		if errors.Is(err, provider.ErrStoreNotFound) {
			logger.Warn("Store not found", zap.String("store", storeName))
			metrics.QueryTotal.WithLabelValues("store_not_found").Inc()
			return m.errorResult(query, fmt.Sprintf("Store '%s' not found. Please create it first.", storeName))
		}
		logger.Error("Store resolution failed", zap.String("store", storeName), zap.Error(err))
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return m.errorResult(query, fmt.Sprintf("Error processing query: %v", err))
	}

	result := m.generate(ctx, query, []string{storeID}, opts)

	metrics.QueryDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	logger.Info("Search query processed",
		zap.String("query_id", queryID),
		zap.Int("citations", len(result.Citations)),
		zap.Duration("latency", time.Since(start)),
	)

	return result
}

// MultiStoreSearch resolves each display name independently, skips the
// ones that do not resolve, and issues a single generation call scoped
// to the resolved subset. An unset temperature defaults to 0.1 here.
func (m *Manager) MultiStoreSearch(ctx context.Context, query string, storeNames []string, opts Options) *Result {
	start := time.Now()

	if opts.Temperature == nil {
		opts.Temperature = temperature(0.1)
	}

	resolved := make([]string, 0, len(storeNames))
	for _, name := range storeNames {
		storeID, err := m.provider.ResolveStore(ctx, name)
		if err != nil {
			logger.Warn("Skipping unresolved store",
				zap.String("store", name),
				zap.Error(err),
			)
			continue
		}
		resolved = append(resolved, storeID)
	}

	if len(resolved) == 0 {
		metrics.QueryTotal.WithLabelValues("store_not_found").Inc()
		return m.errorResult(query, fmt.Sprintf("No valid stores found in: %s", strings.Join(storeNames, ", ")))
	}

	logger.Info("Searching across stores",
		zap.Int("stores", len(resolved)),
		zap.String("query", truncate(query, 100)),
	)

	result := m.generate(ctx, query, resolved, opts)
	metrics.QueryDuration.WithLabelValues("multi_store").Observe(time.Since(start).Seconds())
	return result
}

// Ask wraps a question in the Q&A template, optionally prefixed with
// caller-supplied context, and runs it as a deterministic search.
func (m *Manager) Ask(ctx context.Context, question, storeName, extraContext string) *Result {
	prompt := formatQAPrompt(question)
	if extraContext != "" {
		prompt = fmt.Sprintf("Additional context: %s\n\n%s", extraContext, prompt)
	}

	return m.SearchAndGenerate(ctx, prompt, storeName, Options{Temperature: temperature(0), MaxTokens: defaultMaxTokens})
}

// Summarize generates a cross-document summary of a store, optionally
// focused on one topic.
func (m *Manager) Summarize(ctx context.Context, storeName, focusTopic string) *Result {
	query := summarizationPrompt
	if focusTopic != "" {
		query = fmt.Sprintf("%s\n\nFocus particularly on information related to: %s", summarizationPrompt, focusTopic)
	}

	return m.SearchAndGenerate(ctx, query, storeName, Options{Temperature: temperature(0.3), MaxTokens: 3072})
}

// BatchSearch processes queries sequentially against one store with a
// courtesy delay between provider calls. One query's failure shows up
// as an error-shaped result without aborting the rest; the output
// always has one result per input query, in input order.
func (m *Manager) BatchSearch(ctx context.Context, queries []string, storeName string) []*Result {
	results := make([]*Result, 0, len(queries))

	for i, query := range queries {
		logger.Info("Processing batch query",
			zap.Int("index", i+1),
			zap.Int("total", len(queries)),
			zap.String("query", truncate(query, 50)),
		)

		results = append(results, m.SearchAndGenerate(ctx, query, storeName, Options{}))

		if i < len(queries)-1 {
			select {
			case <-ctx.Done():
				// Fill the remainder so callers still get one result
				// per query.
				for j := i + 1; j < len(queries); j++ {
					results = append(results, m.errorResult(queries[j], fmt.Sprintf("Error processing query: %v", ctx.Err())))
				}
				return results
			case <-time.After(m.batchDelay):
			}
		}
	}

	logger.Info("Batch completed", zap.Int("queries", len(queries)))
	return results
}

func (m *Manager) generate(ctx context.Context, query string, storeIDs []string, opts Options) *Result {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = ragSystemPrompt
	}
	var temp float64
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}

	resp, err := m.provider.Generate(ctx, provider.GenerateRequest{
		Model:             m.model,
		Prompt:            formatSearchPrompt(query),
		SystemInstruction: systemPrompt,
		Temperature:       temp,
		MaxOutputTokens:   maxTokens,
		StoreNames:        storeIDs,
	})
	if err != nil {
		logger.Error("Generation failed", zap.Error(err))
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return m.errorResult(query, fmt.Sprintf("Error processing query: %v", err))
	}

	citations, groundingMetadata := citation.Extract(resp)
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.CitationsPerQuery.Observe(float64(len(citations)))

	return &Result{
		Answer:            resp.Text(),
		Citations:         citations,
		ModelUsed:         m.model,
		Query:             query,
		GroundingMetadata: groundingMetadata,
	}
}

func (m *Manager) errorResult(query, answer string) *Result {
	return &Result{
		Answer:    answer,
		Citations: []citation.Citation{},
		ModelUsed: m.model,
		Query:     query,
	}
}

// temperature lifts a literal into the Options pointer form.
func temperature(v float64) *float64 {
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
