package provider

// Wire types for the file search provider's v1beta REST surface.
// Optional fields are pointer-typed so absence is distinguishable from
// a zero value; the citation extractor pattern-matches on nil instead
// of probing.

type StoreInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
}

type listStoresResponse struct {
	FileSearchStores []StoreInfo `json:"fileSearchStores"`
	NextPageToken    string      `json:"nextPageToken,omitempty"`
}

type createStoreRequest struct {
	DisplayName string `json:"displayName"`
}

// Operation tracks an asynchronous unit of work (document ingestion)
// until the provider reports it done.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *OperationError `json:"error,omitempty"`
	Response map[string]any  `json:"response,omitempty"`
}

type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChunkingConfig controls how the provider splits an uploaded document.
type ChunkingConfig struct {
	WhiteSpaceConfig *WhiteSpaceConfig `json:"whiteSpaceConfig,omitempty"`
}

type WhiteSpaceConfig struct {
	MaxTokensPerChunk int `json:"maxTokensPerChunk"`
	MaxOverlapTokens  int `json:"maxOverlapTokens"`
}

// GenerateRequest is the orchestrator-facing request for a grounded
// generation call. Temperature is passed through unvalidated; the
// provider enforces its own bounds (documented range 0-2).
type GenerateRequest struct {
	Model             string
	Prompt            string
	SystemInstruction string
	Temperature       float64
	MaxOutputTokens   int
	StoreNames        []string
}

type generateContentBody struct {
	Contents          []wireContent   `json:"contents"`
	SystemInstruction *wireContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenConfig  `json:"generationConfig,omitempty"`
	Tools             []wireTool      `json:"tools,omitempty"`
}

type wireContent struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type wireGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	CandidateCount  int     `json:"candidateCount,omitempty"`
}

type wireTool struct {
	FileSearch *wireFileSearch `json:"fileSearch,omitempty"`
}

type wireFileSearch struct {
	FileSearchStoreNames []string `json:"fileSearchStoreNames"`
}

type GenerateContentResponse struct {
	Candidates   []Candidate `json:"candidates,omitempty"`
	ModelVersion string      `json:"modelVersion,omitempty"`
}

// Text returns the generated text of the first candidate, or an empty
// string when the response carries none.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	content := r.Candidates[0].Content
	if content == nil {
		return ""
	}
	var text string
	for _, part := range content.Parts {
		text += part.Text
	}
	return text
}

type Candidate struct {
	Content           *Content           `json:"content,omitempty"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type Part struct {
	Text string `json:"text,omitempty"`
}

// GroundingMetadata attaches source evidence to a candidate. Chunks
// appear either directly or nested under fileSearchGrounding depending
// on provider version.
type GroundingMetadata struct {
	SupportScore        *float64             `json:"supportScore,omitempty"`
	GroundingChunks     []GroundingChunk     `json:"groundingChunks,omitempty"`
	FileSearchGrounding *FileSearchGrounding `json:"fileSearchGrounding,omitempty"`
}

type FileSearchGrounding struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks,omitempty"`
}

// GroundingChunk is one evidence fragment. The same logical fields
// surface under different names across provider versions, so every
// variant is modeled and the extractor applies a fixed fallback order.
type GroundingChunk struct {
	FileName         string            `json:"fileName,omitempty"`
	ChunkText        string            `json:"chunkText,omitempty"`
	Content          string            `json:"content,omitempty"`
	PageNumber       *int              `json:"pageNumber,omitempty"`
	Score            *float64          `json:"score,omitempty"`
	RelevanceScore   *float64          `json:"relevanceScore,omitempty"`
	Source           *ChunkSource      `json:"source,omitempty"`
	RetrievedContext *RetrievedContext `json:"retrievedContext,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

type ChunkSource struct {
	FileName   string `json:"fileName,omitempty"`
	PageNumber *int   `json:"pageNumber,omitempty"`
}

type RetrievedContext struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
