package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/filesearch-rag/backend/internal/intake"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// UploadService is the slice of the intake uploader the document
// routes need.
type UploadService interface {
	UploadDocument(ctx context.Context, path, storeID, displayName string, customChunking bool) (string, error)
	UploadDirectory(ctx context.Context, dir, storeID string, recursive, customChunking bool) (*intake.DirectoryReport, error)
	UploadFromURL(ctx context.Context, rawURL, storeID, displayName string) (string, error)
}

// StoreResolver resolves display names to store resource ids.
type StoreResolver interface {
	ResolveStore(ctx context.Context, displayName string) (string, error)
}

type DocumentHandler struct {
	uploads  UploadService
	resolver StoreResolver
}

func NewDocumentHandler(uploads UploadService, resolver StoreResolver) *DocumentHandler {
	return &DocumentHandler{uploads: uploads, resolver: resolver}
}

// HandleUpload serves POST /api/upload (multipart file + store_name).
// The uploaded bytes land in a temporary file that is removed on every
// exit path.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "file is required",
		})
	}

	storeName := c.FormValue("store_name")
	if storeName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "store_name is required",
		})
	}

	storeID, err := h.resolver.ResolveStore(c.Context(), storeName)
	if err != nil {
		logger.Error("Failed to resolve store for upload", zap.String("store", storeName), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(fileHeader.Filename))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveFile(fileHeader, tmpPath); err != nil {
		logger.Error("Failed to save uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}

	fileID, err := h.uploads.UploadDocument(c.Context(), tmpPath, storeID, fileHeader.Filename, false)
	if err != nil {
		logger.Error("Failed to upload document",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"file_id":  fileID,
		"filename": fileHeader.Filename,
		"message":  fmt.Sprintf("Successfully uploaded %s", fileHeader.Filename),
	})
}

type uploadDirectoryRequest struct {
	DirectoryPath string `json:"directory_path"`
	StoreName     string `json:"store_name"`
	Recursive     *bool  `json:"recursive"`
}

// HandleUploadDirectory serves POST /api/upload-directory.
func (h *DocumentHandler) HandleUploadDirectory(c *fiber.Ctx) error {
	var req uploadDirectoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if req.DirectoryPath == "" || req.StoreName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "directory_path and store_name are required",
		})
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	storeID, err := h.resolver.ResolveStore(c.Context(), req.StoreName)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Directory upload failed: %v", err),
		})
	}

	report, err := h.uploads.UploadDirectory(c.Context(), req.DirectoryPath, storeID, recursive, false)
	if err != nil {
		logger.Error("Directory upload failed", zap.String("dir", req.DirectoryPath), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Directory upload failed: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"files_uploaded": report.Uploaded,
		"message": fmt.Sprintf("Successfully uploaded %d files (%d failed, %d skipped)",
			report.Uploaded, report.Failed, len(report.Skipped)),
	})
}

type uploadURLRequest struct {
	URL       string `json:"url"`
	StoreName string `json:"store_name"`
}

// HandleUploadURL serves POST /api/upload-url.
func (h *DocumentHandler) HandleUploadURL(c *fiber.Ctx) error {
	var req uploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	if req.URL == "" || req.StoreName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "url and store_name are required",
		})
	}

	storeID, err := h.resolver.ResolveStore(c.Context(), req.StoreName)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}

	fileID, err := h.uploads.UploadFromURL(c.Context(), req.URL, storeID, "")
	if err != nil {
		logger.Error("URL upload failed", zap.String("url", req.URL), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": fmt.Sprintf("Upload failed: %v", err),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"file_id":  fileID,
		"filename": req.URL,
		"message":  fmt.Sprintf("Successfully uploaded from %s", req.URL),
	})
}
