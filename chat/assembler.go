package chat

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/relay/llm"
)

// Converter turns word-processor documents into PDFs the upstream can
// parse. Implemented by convert.Client.
type Converter interface {
	Enabled() bool
	ToPDF(ctx context.Context, locator, filename string) (string, error)
}

// Assembler builds multimodal message bodies from text plus attachments.
type Assembler struct {
	converter Converter
	logger    zerolog.Logger
}

// NewAssembler creates an assembler. The converter may be nil when no
// conversion service is configured.
func NewAssembler(converter Converter, logger zerolog.Logger) *Assembler {
	return &Assembler{
		converter: converter,
		logger:    logger.With().Str("component", "assembler").Logger(),
	}
}

// Assemble builds the message body for one turn. With no active
// attachments and no cache directive the text rides as a scalar body.
// Otherwise the text becomes the leading part of a multimodal list,
// followed by one part per attachment in input order. When cache is set
// the directive lands on the last text part, scanning backward so a
// trailing image never carries it.
func (a *Assembler) Assemble(ctx context.Context, role llm.MessageRole, text string, attachments []Attachment, cache bool) llm.Message {
	active := lo.Filter(attachments, func(att Attachment, _ int) bool {
		return !att.Inactive
	})

	if len(active) == 0 && !cache {
		return llm.NewTextMessage(role, text)
	}

	parts := make([]llm.ContentPart, 0, len(active)+1)
	parts = append(parts, llm.NewTextPart(text))

	for _, att := range active {
		switch att.Type {
		case AttachmentTypeImage:
			parts = append(parts, llm.NewImagePart(att.URL))
		case AttachmentTypePDF, AttachmentTypeText:
			parts = append(parts, llm.NewFilePart(att.Name, att.URL))
		case AttachmentTypeDoc:
			parts = append(parts, a.docPart(ctx, att))
		case AttachmentTypeAudio:
			if att.Inline == "" {
				a.logger.Warn().
					Str("attachment_id", att.ID).
					Str("name", att.Name).
					Msg("Audio attachment has no inline payload, skipping")
				continue
			}
			parts = append(parts, llm.NewAudioPart(att.Inline, att.Format))
		default:
			a.logger.Warn().
				Str("attachment_id", att.ID).
				Str("type", string(att.Type)).
				Msg("Unknown attachment type, skipping")
		}
	}

	if cache {
		annotateLastTextPart(parts)
	}

	return llm.NewMultipartMessage(role, parts)
}

// docPart routes a word-processor document through the converter. The
// upstream does not accept these natively; conversion failure degrades to
// forwarding the original locator.
func (a *Assembler) docPart(ctx context.Context, att Attachment) llm.ContentPart {
	if a.converter == nil || !a.converter.Enabled() {
		a.logger.Warn().
			Str("attachment_id", att.ID).
			Str("name", att.Name).
			Msg("Document conversion unavailable, forwarding original document")
		return llm.NewFilePart(att.Name, att.URL)
	}

	pdfURL, err := a.converter.ToPDF(ctx, att.URL, att.Name)
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("attachment_id", att.ID).
			Str("name", att.Name).
			Msg("Document conversion failed, forwarding original document")
		return llm.NewFilePart(att.Name, att.URL)
	}
	return llm.NewFilePart(att.Name, pdfURL)
}

// annotateLastTextPart attaches a cache directive to the last text part in
// the list. Directives only attach to text.
func annotateLastTextPart(parts []llm.ContentPart) {
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i].Type == llm.ContentPartTypeText {
			parts[i].Cache = llm.NewCacheDirective()
			return
		}
	}
}
