package handlers

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filesearch-rag/backend/internal/intake"
)

type fakeUploadService struct {
	uploadErr error
	dirErr    error
	urlErr    error

	lastPath        string
	lastStoreID     string
	lastDisplayName string
	lastURL         string
	report          *intake.DirectoryReport
}

func (f *fakeUploadService) UploadDocument(_ context.Context, path, storeID, displayName string, _ bool) (string, error) {
	f.lastPath = path
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.lastStoreID = storeID
	f.lastDisplayName = displayName
	return "operations/op-1", nil
}

func (f *fakeUploadService) UploadDirectory(_ context.Context, dir, storeID string, recursive, _ bool) (*intake.DirectoryReport, error) {
	if f.dirErr != nil {
		return nil, f.dirErr
	}
	f.lastStoreID = storeID
	if f.report != nil {
		return f.report, nil
	}
	return &intake.DirectoryReport{Uploaded: 2}, nil
}

func (f *fakeUploadService) UploadFromURL(_ context.Context, rawURL, storeID, displayName string) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	f.lastURL = rawURL
	f.lastStoreID = storeID
	return "operations/op-url", nil
}

type fakeResolver struct {
	storeID string
	err     error
}

func (f *fakeResolver) ResolveStore(_ context.Context, displayName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.storeID, nil
}

func documentApp(uploads UploadService, resolver StoreResolver) *fiber.App {
	app := fiber.New()
	h := NewDocumentHandler(uploads, resolver)
	app.Post("/api/upload", h.HandleUpload)
	app.Post("/api/upload-directory", h.HandleUploadDirectory)
	app.Post("/api/upload-url", h.HandleUploadURL)
	return app
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte("file contents"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleUpload(t *testing.T) {
	uploads := &fakeUploadService{}
	app := documentApp(uploads, &fakeResolver{storeID: "fileSearchStores/abc"})

	req := multipartUpload(t, map[string]string{"store_name": "docs"}, "report.pdf")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "operations/op-1", body["file_id"])
	assert.Equal(t, "report.pdf", body["filename"])

	assert.Equal(t, "fileSearchStores/abc", uploads.lastStoreID)
	assert.Equal(t, "report.pdf", uploads.lastDisplayName)

	require.NotEmpty(t, uploads.lastPath)
	_, statErr := os.Stat(uploads.lastPath)
	assert.True(t, os.IsNotExist(statErr), "temp file must be removed after a successful upload")
}

func TestHandleUpload_TempFileRemovedOnFailure(t *testing.T) {
	uploads := &fakeUploadService{uploadErr: errors.New("ingestion failed")}
	app := documentApp(uploads, &fakeResolver{storeID: "fileSearchStores/abc"})

	req := multipartUpload(t, map[string]string{"store_name": "docs"}, "report.pdf")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotEmpty(t, uploads.lastPath)
	_, statErr := os.Stat(uploads.lastPath)
	assert.True(t, os.IsNotExist(statErr), "temp file must be removed after a failed upload")
}

func TestHandleUpload_MissingFile(t *testing.T) {
	app := documentApp(&fakeUploadService{}, &fakeResolver{storeID: "fileSearchStores/abc"})

	req := multipartUpload(t, map[string]string{"store_name": "docs"}, "")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "file is required", decodeBody(t, resp)["detail"])
}

func TestHandleUpload_MissingStoreName(t *testing.T) {
	app := documentApp(&fakeUploadService{}, &fakeResolver{storeID: "fileSearchStores/abc"})

	req := multipartUpload(t, nil, "report.pdf")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "store_name is required", decodeBody(t, resp)["detail"])
}

func TestHandleUpload_ResolveError(t *testing.T) {
	app := documentApp(&fakeUploadService{}, &fakeResolver{err: errors.New("store not found")})

	req := multipartUpload(t, map[string]string{"store_name": "ghost"}, "report.pdf")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleUpload_UploadError(t *testing.T) {
	app := documentApp(&fakeUploadService{uploadErr: errors.New("ingestion failed")}, &fakeResolver{storeID: "fileSearchStores/abc"})

	req := multipartUpload(t, map[string]string{"store_name": "docs"}, "report.pdf")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["detail"], "ingestion failed")
}

func TestHandleUploadDirectory(t *testing.T) {
	uploads := &fakeUploadService{report: &intake.DirectoryReport{
		Uploaded: 3,
		Failed:   1,
		Skipped:  map[string]string{"bad.exe": "Unsupported file format"},
	}}
	app := documentApp(uploads, &fakeResolver{storeID: "fileSearchStores/abc"})

	resp, body := postJSON(t, app, "/api/upload-directory", map[string]any{
		"directory_path": "/data/docs",
		"store_name":     "docs",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["files_uploaded"])
	assert.Contains(t, body["message"], "1 failed")
	assert.Contains(t, body["message"], "1 skipped")
}

func TestHandleUploadDirectory_MissingFields(t *testing.T) {
	app := documentApp(&fakeUploadService{}, &fakeResolver{storeID: "fileSearchStores/abc"})

	resp, body := postJSON(t, app, "/api/upload-directory", map[string]any{"store_name": "docs"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["detail"], "directory_path")
}

func TestHandleUploadURL(t *testing.T) {
	uploads := &fakeUploadService{}
	app := documentApp(uploads, &fakeResolver{storeID: "fileSearchStores/abc"})

	resp, body := postJSON(t, app, "/api/upload-url", map[string]any{
		"url":        "https://example.com/doc.pdf",
		"store_name": "docs",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "operations/op-url", body["file_id"])
	assert.Equal(t, "https://example.com/doc.pdf", uploads.lastURL)
}

func TestHandleUploadURL_MissingFields(t *testing.T) {
	app := documentApp(&fakeUploadService{}, &fakeResolver{storeID: "fileSearchStores/abc"})

	resp, _ := postJSON(t, app, "/api/upload-url", map[string]any{"url": "https://example.com/x"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
