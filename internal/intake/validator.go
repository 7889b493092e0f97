package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedFormats maps accepted file extensions to their MIME types.
var SupportedFormats = map[string]string{
	".pdf":      "application/pdf",
	".txt":      "text/plain",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".html":     "text/html",
	".htm":      "text/html",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".xml":      "application/xml",
}

type ValidationResult struct {
	OK     bool
	Reason string
}

// Validator checks documents before they are forwarded to the external
// store. Every expected failure mode is reported through the result
// pair rather than an error; validation never fails a request.
type Validator struct {
	maxFileSizeMB int
}

func NewValidator(maxFileSizeMB int) *Validator {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 50
	}
	return &Validator{maxFileSizeMB: maxFileSizeMB}
}

func (v *Validator) MaxFileSizeMB() int {
	return v.maxFileSizeMB
}

// Validate reports whether the file at path can be uploaded and, when
// it cannot, why. A file exactly at the size ceiling passes.
func (v *Validator) Validate(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Sprintf("File not found: %s", path)
	}
	if info.IsDir() {
		return false, fmt.Sprintf("Not a file: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := SupportedFormats[ext]; !ok {
		return false, fmt.Sprintf("Unsupported file format: %s. Supported: %s", ext, supportedList())
	}

	maxBytes := int64(v.maxFileSizeMB) * 1024 * 1024
	if info.Size() > maxBytes {
		sizeMB := float64(info.Size()) / (1024 * 1024)
		return false, fmt.Sprintf("File too large: %.1fMB (max %dMB)", sizeMB, v.maxFileSizeMB)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Sprintf("Cannot read file: %s (%v)", path, err)
	}
	f.Close()

	return true, ""
}

// BatchValidate checks each path independently; one invalid file never
// blocks validation of the others.
func (v *Validator) BatchValidate(paths []string) map[string]ValidationResult {
	results := make(map[string]ValidationResult, len(paths))
	for _, path := range paths {
		ok, reason := v.Validate(path)
		results[path] = ValidationResult{OK: ok, Reason: reason}
	}
	return results
}

// IsSupported reports whether the extension of path is in the
// supported set.
func IsSupported(path string) bool {
	_, ok := SupportedFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileInfo describes a candidate document.
type FileInfo struct {
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Extension   string  `json:"extension"`
	SizeBytes   int64   `json:"size_bytes"`
	SizeMB      float64 `json:"size_mb"`
	MimeType    string  `json:"mime_type"`
	IsSupported bool    `json:"is_supported"`
}

func GetFileInfo(path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &FileInfo{
		Path:        abs,
		Name:        filepath.Base(path),
		Extension:   ext,
		SizeBytes:   info.Size(),
		SizeMB:      float64(info.Size()) / (1024 * 1024),
		MimeType:    SupportedFormats[ext],
		IsSupported: IsSupported(path),
	}, nil
}

func supportedList() string {
	exts := make([]string, 0, len(SupportedFormats))
	for ext := range SupportedFormats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}
