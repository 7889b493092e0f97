package handlers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/metrics"
	"github.com/filesearch-rag/backend/internal/provider"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// StoreService is the slice of the provider client the store routes
// need.
type StoreService interface {
	CreateStore(ctx context.Context, displayName string) (string, error)
	ListStores(ctx context.Context) ([]provider.StoreInfo, error)
	DeleteStore(ctx context.Context, resourceID string, force bool) error
	ResolveStore(ctx context.Context, displayName string) (string, error)
}

type StoreHandler struct {
	service StoreService
}

func NewStoreHandler(service StoreService) *StoreHandler {
	return &StoreHandler{service: service}
}

type storeRequest struct {
	StoreName string `json:"store_name"`
}

// HandleList serves GET /api/stores.
func (h *StoreHandler) HandleList(c *fiber.Ctx) error {
	stores, err := h.service.ListStores(c.Context())
	if err != nil {
		logger.Error("Failed to list stores", zap.Error(err))
		metrics.StoreOperations.WithLabelValues("list", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Failed to list stores: %v", err),
		})
	}

	metrics.StoreOperations.WithLabelValues("list", "success").Inc()

	if stores == nil {
		stores = []provider.StoreInfo{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(stores),
		"stores":  stores,
	})
}

// HandleCreate serves POST /api/stores.
func (h *StoreHandler) HandleCreate(c *fiber.Ctx) error {
	var req storeRequest
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

	storeID, err := h.service.CreateStore(c.Context(), req.StoreName)
	if err != nil {
		logger.Error("Failed to create store", zap.String("store", req.StoreName), zap.Error(err))
		metrics.StoreOperations.WithLabelValues("create", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Failed to create store: %v", err),
		})
	}

	metrics.StoreOperations.WithLabelValues("create", "success").Inc()

	return c.JSON(fiber.Map{
		"success":  true,
		"store_id": storeID,
		"message":  fmt.Sprintf("Successfully created store '%s'", req.StoreName),
	})
}

// HandleDelete serves DELETE /api/stores/:store_name.
func (h *StoreHandler) HandleDelete(c *fiber.Ctx) error {
	storeName := c.Params("store_name")

	storeID, err := h.service.ResolveStore(c.Context(), storeName)
	if err != nil {
		logger.Error("Failed to resolve store for deletion", zap.String("store", storeName), zap.Error(err))
		metrics.StoreOperations.WithLabelValues("delete", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Failed to delete store: %v", err),
		})
	}

	if err := h.service.DeleteStore(c.Context(), storeID, true); err != nil {
		logger.Error("Failed to delete store", zap.String("store", storeName), zap.Error(err))
		metrics.StoreOperations.WithLabelValues("delete", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Failed to delete store: %v", err),
		})
	}

	metrics.StoreOperations.WithLabelValues("delete", "success").Inc()

	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Successfully deleted store '%s'", storeName),
	})
}

// HandleInfo serves GET /api/store-info/:store_name. Unknown stores
// are a 404, unlike the search path where they degrade to answer text.
func (h *StoreHandler) HandleInfo(c *fiber.Ctx) error {
	storeName := c.Params("store_name")

	stores, err := h.service.ListStores(c.Context())
	if err != nil {
		logger.Error("Failed to get store info", zap.String("store", storeName), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Failed to get store info: %v", err),
		})
	}

	for _, store := range stores {
		if store.DisplayName == storeName || store.Name == storeName {
			return c.JSON(fiber.Map{
				"success": true,
				"store":   store,
			})
		}
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"detail": fmt.Sprintf("Store '%s' not found", storeName),
	})
}
