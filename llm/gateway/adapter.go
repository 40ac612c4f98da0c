package gateway

import (
	"encoding/json"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/relay/llm"
)

// chatRequest is the gateway chat completions request body.
// Message content is either a plain string or a part list, so it marshals
// through the any-typed Content field.
type chatRequest struct {
	Model            string          `json:"model"`
	Messages         []chatMessage   `json:"messages"`
	Stream           bool            `json:"stream"`
	MaxTokens        int64           `json:"max_tokens"`
	Temperature      *float64        `json:"temperature,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Plugins          []chatPlugin    `json:"plugins,omitempty"`
	Reasoning        *chatReasoning  `json:"reasoning,omitempty"`
	Usage            *chatUsageOptIn `json:"usage,omitempty"`
	Modalities       []string        `json:"modalities,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	ImageURL     *imageURL     `json:"image_url,omitempty"`
	File         *fileData     `json:"file,omitempty"`
	InputAudio   *inputAudio   `json:"input_audio,omitempty"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type fileData struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type chatPlugin struct {
	ID         string     `json:"id"`
	PDF        *pdfEngine `json:"pdf,omitempty"`
	MaxResults int        `json:"max_results,omitempty"`
}

type pdfEngine struct {
	Engine string `json:"engine"`
}

type chatReasoning struct {
	Effort    string `json:"effort,omitempty"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Exclude   bool   `json:"exclude,omitempty"`
}

type chatUsageOptIn struct {
	Include bool `json:"include"`
}

// chunk is one decoded JSON object from a data line of the stream.
type chunk struct {
	ID      string        `json:"id"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage"`
	Error   *chunkError   `json:"error"`
}

type chunkChoice struct {
	Delta        *chunkDelta `json:"delta"`
	Message      *chunkDelta `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chunkDelta carries the incremental payload of a choice. Reasoning stays
// raw because providers disagree on its shape; the normalizer flattens it.
type chunkDelta struct {
	Content     string            `json:"content"`
	Reasoning   json.RawMessage   `json:"reasoning"`
	Images      []chunkImage      `json:"images"`
	Annotations []chunkAnnotation `json:"annotations"`
}

type chunkImage struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type chunkAnnotation struct {
	Type        string         `json:"type"`
	URLCitation *chunkCitation `json:"url_citation"`
}

type chunkCitation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type chunkUsage struct {
	PromptTokens            int64             `json:"prompt_tokens"`
	CompletionTokens        int64             `json:"completion_tokens"`
	TotalTokens             int64             `json:"total_tokens"`
	NativePromptTokens      int64             `json:"native_tokens_prompt"`
	NativeCompletionTokens  int64             `json:"native_tokens_completion"`
	Cost                    float64           `json:"cost"`
	CostDetails             *costDetails      `json:"cost_details"`
	PromptTokensDetails     *promptDetails    `json:"prompt_tokens_details"`
	CompletionTokensDetails *completionDetail `json:"completion_tokens_details"`
}

type costDetails struct {
	UpstreamInferenceCost float64 `json:"upstream_inference_cost"`
}

type promptDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}

type completionDetail struct {
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

type chunkError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// toChatRequest converts a neutral request into the gateway wire format.
func toChatRequest(req *llm.Request) *chatRequest {
	out := &chatRequest{
		Model:            req.Model,
		Messages:         lo.Map(req.Messages, func(m llm.Message, _ int) chatMessage { return toChatMessage(m) }),
		Stream:           true,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Modalities:       req.Modalities,
	}

	for _, p := range req.Plugins {
		plugin := chatPlugin{ID: p.ID, MaxResults: p.MaxResults}
		if p.PDFEngine != "" {
			plugin.PDF = &pdfEngine{Engine: p.PDFEngine}
		}
		out.Plugins = append(out.Plugins, plugin)
	}

	if req.Reasoning != nil {
		out.Reasoning = &chatReasoning{
			Effort:    req.Reasoning.Effort,
			MaxTokens: req.Reasoning.MaxTokens,
			Exclude:   req.Reasoning.Exclude,
		}
	}

	if req.IncludeUsage {
		out.Usage = &chatUsageOptIn{Include: true}
	}

	return out
}

// toChatMessage converts one neutral message. Plain-text bodies stay scalar
// strings; multimodal bodies become part lists.
func toChatMessage(msg llm.Message) chatMessage {
	if !msg.Multipart() {
		return chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	parts := lo.Map(msg.Parts, func(p llm.ContentPart, _ int) contentPart { return toContentPart(p) })
	return chatMessage{Role: string(msg.Role), Content: parts}
}

func toContentPart(part llm.ContentPart) contentPart {
	out := contentPart{Type: string(part.Type)}

	switch part.Type {
	case llm.ContentPartTypeText:
		out.Text = part.Text
	case llm.ContentPartTypeImage:
		out.ImageURL = &imageURL{URL: part.ImageURL}
	case llm.ContentPartTypeFile:
		if part.File != nil {
			out.File = &fileData{Filename: part.File.Filename, FileData: part.File.FileData}
		}
	case llm.ContentPartTypeAudio:
		if part.Audio != nil {
			out.InputAudio = &inputAudio{Data: part.Audio.Data, Format: part.Audio.Format}
		}
	}

	if part.Cache != nil {
		out.CacheControl = &cacheControl{Type: part.Cache.Type}
	}

	return out
}
