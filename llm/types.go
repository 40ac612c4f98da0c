package llm

import (
	"encoding/json"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
// Content carries a plain-text body; Parts carries a multimodal body.
// Exactly one of the two is set. Plain text is preferred when a message
// has no attachments and no cache directive, since the upstream protocol
// accepts a scalar body there.
type Message struct {
	Role    MessageRole
	Content string
	Parts   []ContentPart
}

// Multipart reports whether the message carries a multimodal body.
func (m Message) Multipart() bool {
	return len(m.Parts) > 0
}

// ContentPart represents a single part within a multimodal message body.
// It can be text, an image reference, a file reference, or inline audio.
type ContentPart struct {
	Type     ContentPartType
	Text     string          // For text parts
	ImageURL string          // For image reference parts
	File     *FileReference  // For file reference parts
	Audio    *InlineAudio    // For inline audio parts
	Cache    *CacheDirective // Optional reusable-prefix marker, text parts only
}

// ContentPartType represents the type of content part.
type ContentPartType string

const (
	ContentPartTypeText  ContentPartType = "text"
	ContentPartTypeImage ContentPartType = "image_url"
	ContentPartTypeFile  ContentPartType = "file"
	ContentPartTypeAudio ContentPartType = "input_audio"
)

// FileReference points the upstream at a document by name and locator.
type FileReference struct {
	Filename string
	FileData string
}

// InlineAudio carries a pre-fetched base64 audio payload. Audio cannot be
// passed by reference upstream.
type InlineAudio struct {
	Data   string
	Format string
}

// CacheDirective marks the content up to and including its part as a
// reusable prefix for providers that support prompt caching. The upstream
// only honors it on text parts.
type CacheDirective struct {
	Type string
}

const CacheTypeEphemeral = "ephemeral"

// NewCacheDirective creates the standard ephemeral cache directive.
func NewCacheDirective() *CacheDirective {
	return &CacheDirective{Type: CacheTypeEphemeral}
}

// Plugin describes an upstream-side processing plugin to enable for a
// request, such as document parsing or web search.
type Plugin struct {
	ID         string
	PDFEngine  string // For the file parser plugin
	MaxResults int    // For the web search plugin
}

const (
	PluginFileParser = "file-parser"
	PluginWebSearch  = "web"

	// PDFEngineText is the cheap text-extraction engine; sufficient for
	// documents that carry a text layer.
	PDFEngineText = "pdf-text"
)

// ReasoningConfig controls upstream reasoning output. Effort and MaxTokens
// are mutually exclusive ways to size the reasoning budget; zero values
// mean unset. Exclude requests reasoning internally without returning it.
type ReasoningConfig struct {
	Effort    string
	MaxTokens int64
	Exclude   bool
}

const (
	ReasoningEffortLow    = "low"
	ReasoningEffortMedium = "medium"
	ReasoningEffortHigh   = "high"
)

// Request represents a complete upstream completion request.
type Request struct {
	Model            string
	Messages         []Message
	MaxTokens        int64
	Temperature      *float64 // Optional temperature override
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Plugins          []Plugin
	Reasoning        *ReasoningConfig
	IncludeUsage     bool
	Modalities       []string

	// APIKey is an optional caller-supplied gateway key. When set it wins
	// over configured credentials in the resolution chain.
	APIKey string
}

// Usage represents normalized cost and token accounting for one response.
// Numeric fields are always populated; absent upstream fields become zero
// so downstream aggregation can sum without nil checks.
type Usage struct {
	Cost             float64 `json:"cost"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CachedTokens     int64   `json:"cached_tokens,omitempty"`
	ReasoningTokens  int64   `json:"reasoning_tokens,omitempty"`
	UpstreamCost     float64 `json:"upstream_cost,omitempty"`
	Credential       string  `json:"credential,omitempty"`
}

// Annotation represents a citation attached to generated content, e.g. a
// web search result backing a claim.
type Annotation struct {
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// StreamEvent represents one normalized streaming event. A single upstream
// chunk may populate several fields; fields not present in the chunk stay
// zero. An event with nothing set is never forwarded.
type StreamEvent struct {
	Content      string
	Reasoning    string
	Images       []string
	Annotations  []Annotation
	Usage        *Usage
	FinishReason string
}

// Empty reports whether the event carries nothing worth forwarding.
// A finish reason alone does not make an event forwardable; it only rides
// along with the fields above.
func (e *StreamEvent) Empty() bool {
	return e.Content == "" &&
		e.Reasoning == "" &&
		len(e.Images) == 0 &&
		len(e.Annotations) == 0 &&
		e.Usage == nil
}

// NewTextMessage creates a message with a plain-text body.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// NewMultipartMessage creates a message with a multimodal body.
func NewMultipartMessage(role MessageRole, parts []ContentPart) Message {
	return Message{
		Role:  role,
		Parts: parts,
	}
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{
		Type: ContentPartTypeText,
		Text: text,
	}
}

// NewImagePart creates an image reference part from a retrieval URL.
func NewImagePart(url string) ContentPart {
	return ContentPart{
		Type:     ContentPartTypeImage,
		ImageURL: url,
	}
}

// NewFilePart creates a file reference part.
func NewFilePart(filename, fileData string) ContentPart {
	return ContentPart{
		Type: ContentPartTypeFile,
		File: &FileReference{
			Filename: filename,
			FileData: fileData,
		},
	}
}

// NewAudioPart creates an inline audio part.
func NewAudioPart(data, format string) ContentPart {
	return ContentPart{
		Type: ContentPartTypeAudio,
		Audio: &InlineAudio{
			Data:   data,
			Format: format,
		},
	}
}

// ToJSON marshals a message to JSON for debugging/logging purposes.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
