// Package chat turns inbound relay requests into upstream completion
// streams. It owns message assembly, system-prompt composition, cache
// breakpoint placement, the stream relay state machine, and the
// auto-naming side effect that runs after a first response completes.
package chat

import (
	"github.com/aschepis/backscratcher/relay/llm"
)

// AttachmentType tags an attachment with its upstream handling class.
type AttachmentType string

const (
	AttachmentTypeImage AttachmentType = "image"
	AttachmentTypePDF   AttachmentType = "pdf"
	AttachmentTypeText  AttachmentType = "text"
	AttachmentTypeDoc   AttachmentType = "doc"
	AttachmentTypeAudio AttachmentType = "audio"
)

// Attachment describes one caller-supplied attachment. URL is the
// retrieval locator the upstream fetches by reference; Inline carries a
// pre-fetched base64 payload for types that cannot be fetched upstream.
type Attachment struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     AttachmentType `json:"type"`
	Size     int64          `json:"size,omitempty"`
	URL      string         `json:"url,omitempty"`
	Inline   string         `json:"inline,omitempty"`
	Format   string         `json:"format,omitempty"`
	Inactive bool           `json:"inactive,omitempty"`
}

// Turn is one prior conversation turn replayed by the caller. Turns are
// immutable for the duration of the request.
type Turn struct {
	Role        llm.MessageRole `json:"role"`
	Text        string          `json:"text"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// Request is the inbound relay request. Schema validation happens at the
// HTTP boundary; by the time a Request reaches the relay its required
// fields are populated.
type Request struct {
	UserID         string `json:"userId" binding:"required"`
	ConversationID string `json:"conversationId" binding:"required"`
	Title          string `json:"title,omitempty"`

	Message string `json:"message"`
	History []Turn `json:"history,omitempty"`

	Model             string   `json:"model" binding:"required"`
	MaxTokens         int64    `json:"maxTokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	FrequencyPenalty  *float64 `json:"frequencyPenalty,omitempty"`
	RepetitionPenalty *float64 `json:"repetitionPenalty,omitempty"`

	ReasoningEffort    string `json:"reasoningEffort,omitempty"`
	ReasoningMaxTokens int64  `json:"reasoningMaxTokens,omitempty"`
	ReasoningExclude   bool   `json:"reasoningExclude,omitempty"`

	PersonaID    string `json:"personaId,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
	Guided       bool   `json:"guided,omitempty"`

	UserName     string `json:"userName,omitempty"`
	UserNickname string `json:"userNickname,omitempty"`
	UserAbout    string `json:"userAbout,omitempty"`
	Personality  string `json:"personality,omitempty"`

	GlobalMemories       []string `json:"globalMemories,omitempty"`
	ConversationMemories []string `json:"conversationMemories,omitempty"`

	WebSearch     bool `json:"webSearch,omitempty"`
	MaxWebResults int  `json:"maxWebResults,omitempty"`

	Modalities []string `json:"modalities,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// APIKey lets a caller bring their own gateway credential. It is
	// forwarded, never stored.
	APIKey string `json:"apiKey,omitempty"`
}
