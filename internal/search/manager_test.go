package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filesearch-rag/backend/internal/provider"
)

type fakeProvider struct {
	stores      map[string]string
	resolveErr  error
	generateErr error
	response    *provider.GenerateContentResponse

	generateCalls []provider.GenerateRequest
}

func (f *fakeProvider) ResolveStore(_ context.Context, displayName string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	if id, ok := f.stores[displayName]; ok {
		return id, nil
	}
	return "", fmt.Errorf("resolving %q: %w", displayName, provider.ErrStoreNotFound)
}

func (f *fakeProvider) Generate(_ context.Context, req provider.GenerateRequest) (*provider.GenerateContentResponse, error) {
	f.generateCalls = append(f.generateCalls, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	if f.response != nil {
		return f.response, nil
	}
	return &provider.GenerateContentResponse{
		Candidates: []provider.Candidate{
			{Content: &provider.Content{Parts: []provider.Part{{Text: "generated answer"}}}},
		},
	}, nil
}

func groundedResponse() *provider.GenerateContentResponse {
	score := 0.7
	return &provider.GenerateContentResponse{
		Candidates: []provider.Candidate{
			{
				Content: &provider.Content{Parts: []provider.Part{{Text: "grounded answer"}}},
				GroundingMetadata: &provider.GroundingMetadata{
					GroundingChunks: []provider.GroundingChunk{
						{FileName: "manual.pdf", ChunkText: "relevant passage", Score: &score},
					},
				},
			},
		},
	}
}

func newTestManager(p Provider) *Manager {
	m := NewManager(p, "test-model")
	m.batchDelay = time.Millisecond
	return m
}

func TestSearchAndGenerate_Success(t *testing.T) {
	fake := &fakeProvider{
		stores:   map[string]string{"docs": "fileSearchStores/abc"},
		response: groundedResponse(),
	}
	m := newTestManager(fake)

	result := m.SearchAndGenerate(context.Background(), "what is the policy?", "docs", Options{})

	assert.Equal(t, "grounded answer", result.Answer)
	assert.Equal(t, "what is the policy?", result.Query)
	assert.Equal(t, "test-model", result.ModelUsed)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "manual.pdf", result.Citations[0].FileName)
	require.NotNil(t, result.GroundingMetadata)
	assert.Equal(t, 1, result.GroundingMetadata["grounding_chunks_count"])

	require.Len(t, fake.generateCalls, 1)
	req := fake.generateCalls[0]
	assert.Equal(t, []string{"fileSearchStores/abc"}, req.StoreNames)
	assert.Contains(t, req.Prompt, "what is the policy?")
	assert.Equal(t, defaultMaxTokens, req.MaxOutputTokens)
	assert.NotEmpty(t, req.SystemInstruction)
}

func TestSearchAndGenerate_StoreNotFound(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{}}
	m := newTestManager(fake)

	result := m.SearchAndGenerate(context.Background(), "anything", "missing", Options{})

	assert.Equal(t, "Store 'missing' not found. Please create it first.", result.Answer)
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)
	assert.Equal(t, "anything", result.Query)
	assert.Empty(t, fake.generateCalls, "no generation call for an unresolved store")
}

func TestSearchAndGenerate_ResolveError(t *testing.T) {
	fake := &fakeProvider{resolveErr: errors.New("connection refused")}
	m := newTestManager(fake)

	result := m.SearchAndGenerate(context.Background(), "anything", "docs", Options{})

	assert.Contains(t, result.Answer, "Error processing query")
	assert.Contains(t, result.Answer, "connection refused")
	assert.Empty(t, result.Citations)
}

func TestSearchAndGenerate_GenerationError(t *testing.T) {
	fake := &fakeProvider{
		stores:      map[string]string{"docs": "fileSearchStores/abc"},
		generateErr: errors.New("model overloaded"),
	}
	m := newTestManager(fake)

	result := m.SearchAndGenerate(context.Background(), "anything", "docs", Options{})

	assert.Contains(t, result.Answer, "model overloaded")
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)
}

func TestSearchAndGenerate_OptionsPassedThrough(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	m.SearchAndGenerate(context.Background(), "q", "docs", Options{
		Temperature:  temperature(1.5),
		MaxTokens:    2048,
		SystemPrompt: "custom system prompt",
	})

	require.Len(t, fake.generateCalls, 1)
	req := fake.generateCalls[0]
	assert.Equal(t, 1.5, req.Temperature)
	assert.Equal(t, 2048, req.MaxOutputTokens)
	assert.Equal(t, "custom system prompt", req.SystemInstruction)
}

func TestMultiStoreSearch_SkipsUnresolved(t *testing.T) {
	fake := &fakeProvider{
		stores:   map[string]string{"a": "fileSearchStores/a", "c": "fileSearchStores/c"},
		response: groundedResponse(),
	}
	m := newTestManager(fake)

	result := m.MultiStoreSearch(context.Background(), "q", []string{"a", "b", "c"}, Options{})

	assert.Equal(t, "grounded answer", result.Answer)
	require.Len(t, fake.generateCalls, 1)
	assert.Equal(t, []string{"fileSearchStores/a", "fileSearchStores/c"}, fake.generateCalls[0].StoreNames)
	assert.Equal(t, 0.1, fake.generateCalls[0].Temperature, "unset temperature defaults to 0.1 for multi-store")
}

func TestMultiStoreSearch_ExplicitZeroTemperature(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"a": "fileSearchStores/a"}}
	m := newTestManager(fake)

	m.MultiStoreSearch(context.Background(), "q", []string{"a"}, Options{Temperature: temperature(0)})

	require.Len(t, fake.generateCalls, 1)
	assert.Equal(t, float64(0), fake.generateCalls[0].Temperature, "an explicit zero must not be replaced by the default")
}

func TestMultiStoreSearch_NoneResolved(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{}}
	m := newTestManager(fake)

	result := m.MultiStoreSearch(context.Background(), "q", []string{"x", "y"}, Options{})

	assert.Equal(t, "No valid stores found in: x, y", result.Answer)
	assert.Empty(t, result.Citations)
	assert.Empty(t, fake.generateCalls)
}

func TestAsk_WrapsQuestion(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	m.Ask(context.Background(), "when does the contract expire?", "docs", "")

	require.Len(t, fake.generateCalls, 1)
	assert.Contains(t, fake.generateCalls[0].Prompt, "when does the contract expire?")
	assert.Equal(t, float64(0), fake.generateCalls[0].Temperature)
}

func TestAsk_WithAdditionalContext(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	m.Ask(context.Background(), "the question", "docs", "prior conversation notes")

	require.Len(t, fake.generateCalls, 1)
	assert.Contains(t, fake.generateCalls[0].Prompt, "Additional context: prior conversation notes")
	assert.Contains(t, fake.generateCalls[0].Prompt, "the question")
}

func TestSummarize(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	m.Summarize(context.Background(), "docs", "")

	require.Len(t, fake.generateCalls, 1)
	assert.Equal(t, 0.3, fake.generateCalls[0].Temperature)
	assert.Equal(t, 3072, fake.generateCalls[0].MaxOutputTokens)
}

func TestSummarize_FocusTopic(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	m.Summarize(context.Background(), "docs", "security posture")

	require.Len(t, fake.generateCalls, 1)
	assert.Contains(t, fake.generateCalls[0].Prompt, "security posture")
}

func TestBatchSearch_OneResultPerQuery(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)

	queries := []string{"first", "second", "third"}
	results := m.BatchSearch(context.Background(), queries, "docs")

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, queries[i], r.Query)
		assert.Equal(t, "generated answer", r.Answer)
	}
}

func TestBatchSearch_FailureDoesNotAbort(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{}}
	m := newTestManager(fake)

	results := m.BatchSearch(context.Background(), []string{"a", "b"}, "missing")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Answer, "not found")
	}
}

func TestBatchSearch_ContextCancellationFillsRemainder(t *testing.T) {
	fake := &fakeProvider{stores: map[string]string{"docs": "fileSearchStores/abc"}}
	m := newTestManager(fake)
	m.batchDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []*Result, 1)
	go func() {
		done <- m.BatchSearch(ctx, []string{"a", "b", "c"}, "docs")
	}()

	// Let the first query complete, then cancel during the inter-query
	// delay.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case results := <-done:
		require.Len(t, results, 3)
		assert.Equal(t, "generated answer", results[0].Answer)
		assert.Contains(t, results[1].Answer, "Error processing query")
		assert.Contains(t, results[2].Answer, "Error processing query")
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not return after cancellation")
	}
}

func TestFormatSearchPrompt(t *testing.T) {
	prompt := formatSearchPrompt("the user query")

	assert.Contains(t, prompt, "the user query")
}
