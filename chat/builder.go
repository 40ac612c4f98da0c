package chat

import (
	"context"

	"github.com/aschepis/backscratcher/relay/config"
	"github.com/aschepis/backscratcher/relay/conversations"
	"github.com/aschepis/backscratcher/relay/llm"
)

// Builder assembles complete upstream requests from inbound ones.
type Builder struct {
	cfg       *config.ServerConfig
	assembler *Assembler
	composer  *Composer
}

// NewBuilder creates a request builder.
func NewBuilder(cfg *config.ServerConfig, assembler *Assembler, composer *Composer) *Builder {
	return &Builder{
		cfg:       cfg,
		assembler: assembler,
		composer:  composer,
	}
}

// Build merges the system message, the (cache-annotated or plain) history,
// and the current turn into one upstream request. It reports whether the
// system prompt armed the Auto-Namer for this request.
func (b *Builder) Build(ctx context.Context, req *Request, conv *conversations.Conversation) (*llm.Request, bool) {
	strategy := SelectStrategy(b.cfg.CacheCapableModel(req.Model), len(req.History))

	system, namingRequested := b.composer.Compose(req, conv, strategy.Enabled && len(req.History) > 0)

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, system)

	for i, turn := range req.History {
		messages = append(messages, b.assembler.Assemble(ctx, turn.Role, turn.Text, turn.Attachments, i == strategy.Boundary))
	}

	// A delegated-history caller pre-seeds the whole turn sequence into
	// history; an empty current message then adds nothing.
	if req.Message != "" || len(req.History) == 0 {
		messages = append(messages, b.assembler.Assemble(ctx, llm.RoleUser, req.Message, req.Attachments, false))
	}

	out := &llm.Request{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        b.maxTokens(req),
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  presenceFromRepetition(req.RepetitionPenalty),
		Plugins:          b.plugins(req),
		Reasoning:        reasoningConfig(req),
		IncludeUsage:     true,
		Modalities:       req.Modalities,
		APIKey:           req.APIKey,
	}

	return out, namingRequested
}

// maxTokens resolves the response-length ceiling. A persona-level ceiling
// beats the caller's value, which beats the server default. There is
// always a ceiling.
func (b *Builder) maxTokens(req *Request) int64 {
	if persona := b.cfg.Persona(req.PersonaID); persona != nil && persona.MaxTokens > 0 {
		return persona.MaxTokens
	}
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return b.cfg.MaxTokens
}

// presenceFromRepetition remaps a repetition penalty (0-2, neutral at 1.0)
// onto the upstream presence-penalty scale. Neutral emits nothing.
func presenceFromRepetition(rp *float64) *float64 {
	if rp == nil || *rp == 1.0 {
		return nil
	}
	presence := (*rp - 1) * 2
	return &presence
}

// plugins returns the upstream plugin descriptors the request calls for:
// the document parser when file attachments are present anywhere in the
// request, web search when the caller asked for it.
func (b *Builder) plugins(req *Request) []llm.Plugin {
	var plugins []llm.Plugin
	if hasFileAttachments(req) {
		plugins = append(plugins, llm.Plugin{ID: llm.PluginFileParser, PDFEngine: llm.PDFEngineText})
	}
	if req.WebSearch {
		plugins = append(plugins, llm.Plugin{ID: llm.PluginWebSearch, MaxResults: req.MaxWebResults})
	}
	return plugins
}

// hasFileAttachments reports whether any active attachment, current or
// replayed, routes through the document parser.
func hasFileAttachments(req *Request) bool {
	if anyFileAttachment(req.Attachments) {
		return true
	}
	for _, turn := range req.History {
		if anyFileAttachment(turn.Attachments) {
			return true
		}
	}
	return false
}

func anyFileAttachment(attachments []Attachment) bool {
	for _, att := range attachments {
		if att.Inactive {
			continue
		}
		switch att.Type {
		case AttachmentTypePDF, AttachmentTypeText, AttachmentTypeDoc:
			return true
		}
	}
	return false
}

// reasoningConfig builds the reasoning block when any reasoning field is
// set on the request.
func reasoningConfig(req *Request) *llm.ReasoningConfig {
	if req.ReasoningEffort == "" && req.ReasoningMaxTokens == 0 && !req.ReasoningExclude {
		return nil
	}
	return &llm.ReasoningConfig{
		Effort:    req.ReasoningEffort,
		MaxTokens: req.ReasoningMaxTokens,
		Exclude:   req.ReasoningExclude,
	}
}
