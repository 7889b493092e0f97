package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/citation"
	"github.com/filesearch-rag/backend/internal/search"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// SearchService is the slice of the orchestrator the search routes
// need.
type SearchService interface {
	SearchAndGenerate(ctx context.Context, query, storeName string, opts search.Options) *search.Result
	Summarize(ctx context.Context, storeName, focusTopic string) *search.Result
}

type SearchHandler struct {
	service SearchService
}

func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

type queryRequest struct {
	Query        string   `json:"query"`
	StoreName    string   `json:"store_name"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	SystemPrompt string   `json:"system_prompt"`
}

// HandleSearch serves POST /api/search. Provider failures surface as
// answer text with a 200; only request-shape problems produce non-200
// responses.
func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse search request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "query is required",
		})
	}
	if req.StoreName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "store_name is required",
		})
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}

	start := time.Now()
	result := h.service.SearchAndGenerate(c.Context(), req.Query, req.StoreName, search.Options{
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	})

	return c.JSON(fiber.Map{
		"answer":    result.Answer,
		"citations": citationList(result.Citations),
		"metadata":  resultMetadata(result, time.Since(start)),
	})
}

// HandleAsk serves POST /api/ask, an alias for search.
func (h *SearchHandler) HandleAsk(c *fiber.Ctx) error {
	return h.HandleSearch(c)
}

type summarizeRequest struct {
	StoreName  string `json:"store_name"`
	FocusTopic string `json:"focus_topic"`
}

// HandleSummarize serves POST /api/summarize.
func (h *SearchHandler) HandleSummarize(c *fiber.Ctx) error {
	var req summarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if req.StoreName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "store_name is required",
		})
	}

	result := h.service.Summarize(c.Context(), req.StoreName, req.FocusTopic)

	metadata := result.GroundingMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return c.JSON(fiber.Map{
		"summary":   result.Answer,
		"citations": citationList(result.Citations),
		"metadata":  metadata,
	})
}

// citationList keeps the citations field an empty array rather than
// null when there are none.
func citationList(citations []citation.Citation) []citation.Citation {
	if citations == nil {
		return []citation.Citation{}
	}
	return citations
}

func resultMetadata(result *search.Result, elapsed time.Duration) map[string]any {
	metadata := map[string]any{}
	for k, v := range result.GroundingMetadata {
		metadata[k] = v
	}
	metadata["processing_time"] = elapsed.Seconds()
	metadata["query"] = result.Query
	metadata["model"] = result.ModelUsed
	return metadata
}
