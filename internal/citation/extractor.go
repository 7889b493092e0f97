package citation

import (
	"fmt"
	"strings"

	"github.com/filesearch-rag/backend/internal/provider"
	"github.com/filesearch-rag/backend/pkg/logger"
)

// Citation is one grounding reference returned alongside an answer.
type Citation struct {
	FileName   string         `json:"file_name"`
	ChunkText  string         `json:"chunk_text"`
	PageNumber *int           `json:"page_number"`
	Score      *float64       `json:"score"`
	Metadata   map[string]any `json:"metadata"`
}

const unknownFile = "Unknown File"

// dedupPrefixLen is the number of leading characters of chunk text
// that, together with the file name, identify a citation.
const dedupPrefixLen = 100

// Extract walks a provider response and returns its citations plus a
// grounding-metadata summary. A malformed or empty response degrades
// to (nil, nil); extraction never fails a request.
func Extract(resp *provider.GenerateContentResponse) ([]Citation, map[string]any) {
	chunks := groundingChunks(resp)
	if chunks == nil {
		return nil, extractMetadata(resp)
	}

	citations := make([]Citation, 0, len(chunks))
	for _, chunk := range chunks {
		citations = append(citations, Citation{
			FileName:   extractFileName(chunk),
			ChunkText:  extractChunkText(chunk),
			PageNumber: extractPageNumber(chunk),
			Score:      extractScore(chunk),
			Metadata:   extractChunkMetadata(chunk),
		})
	}

	return deduplicate(citations), extractMetadata(resp)
}

// groundingChunks locates the chunk sequence of the first candidate.
// The direct field wins over the nested file search grounding; only
// one source is read, never both merged.
func groundingChunks(resp *provider.GenerateContentResponse) []provider.GroundingChunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}

	grounding := resp.Candidates[0].GroundingMetadata
	if grounding == nil {
		return nil
	}

	if len(grounding.GroundingChunks) > 0 {
		return grounding.GroundingChunks
	}
	if grounding.FileSearchGrounding != nil && len(grounding.FileSearchGrounding.GroundingChunks) > 0 {
		return grounding.FileSearchGrounding.GroundingChunks
	}

	logger.Warn("Grounding metadata present but carries no chunks")
	return nil
}

// extractMetadata summarizes the first candidate's grounding metadata.
func extractMetadata(resp *provider.GenerateContentResponse) map[string]any {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}

	grounding := resp.Candidates[0].GroundingMetadata
	if grounding == nil {
		return nil
	}

	count := len(grounding.GroundingChunks)
	if count == 0 && grounding.FileSearchGrounding != nil {
		count = len(grounding.FileSearchGrounding.GroundingChunks)
	}

	var supportScore any
	if grounding.SupportScore != nil {
		supportScore = *grounding.SupportScore
	}

	return map[string]any{
		"support_score":          supportScore,
		"grounding_chunks_count": count,
	}
}

// Field fallback chains: first match wins, values are never merged
// across variants.

func extractFileName(chunk provider.GroundingChunk) string {
	if chunk.FileName != "" {
		return chunk.FileName
	}
	if chunk.Source != nil && chunk.Source.FileName != "" {
		return chunk.Source.FileName
	}
	if ctx := chunk.RetrievedContext; ctx != nil {
		if ctx.URI != "" {
			segments := strings.Split(ctx.URI, "/")
			return segments[len(segments)-1]
		}
		if ctx.Title != "" {
			return ctx.Title
		}
	}
	return unknownFile
}

func extractChunkText(chunk provider.GroundingChunk) string {
	if chunk.ChunkText != "" {
		return chunk.ChunkText
	}
	if chunk.Content != "" {
		return chunk.Content
	}
	if chunk.RetrievedContext != nil && chunk.RetrievedContext.Text != "" {
		return chunk.RetrievedContext.Text
	}
	return ""
}

func extractPageNumber(chunk provider.GroundingChunk) *int {
	if chunk.PageNumber != nil {
		return chunk.PageNumber
	}
	if chunk.Source != nil && chunk.Source.PageNumber != nil {
		return chunk.Source.PageNumber
	}
	return nil
}

func extractScore(chunk provider.GroundingChunk) *float64 {
	if chunk.Score != nil {
		return chunk.Score
	}
	if chunk.RelevanceScore != nil {
		return chunk.RelevanceScore
	}
	return nil
}

func extractChunkMetadata(chunk provider.GroundingChunk) map[string]any {
	if len(chunk.Metadata) == 0 {
		return nil
	}
	return chunk.Metadata
}

// deduplicate collapses citations sharing the same file name and chunk
// text prefix, keeping the first occurrence in provider order.
func deduplicate(citations []Citation) []Citation {
	type key struct {
		fileName string
		prefix   string
	}

	seen := make(map[key]struct{}, len(citations))
	unique := make([]Citation, 0, len(citations))

	for _, c := range citations {
		k := key{fileName: c.FileName, prefix: textPrefix(c.ChunkText, dedupPrefixLen)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}

func textPrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// FormatCitations renders a numbered source list for display.
func FormatCitations(citations []Citation) string {
	if len(citations) == 0 {
		return "No sources found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sources (%d found):\n", len(citations))
	for i, c := range citations {
		fmt.Fprintf(&b, "%d. %s", i+1, c.FileName)
		if c.PageNumber != nil {
			fmt.Fprintf(&b, " (Page %d)", *c.PageNumber)
		}
		b.WriteString("\n")
	}
	return b.String()
}
