package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/llm"
)

// Scanner sizing: reasoning-heavy chunks run long, image chunks longer.
const (
	scanInitialBuffer = 64 * 1024
	scanMaxBuffer     = 1024 * 1024
)

const doneSentinel = "[DONE]"

// stream decodes the gateway's data-prefixed event stream into normalized
// events. It reads line-wise; the scanner retains partial lines across
// reads, so network chunk boundaries never split an event.
type stream struct {
	ctx        context.Context
	body       io.ReadCloser
	scanner    *bufio.Scanner
	credential string
	logger     zerolog.Logger

	event *llm.StreamEvent
	err   error
	done  bool
}

func newStream(ctx context.Context, body io.ReadCloser, credential string, logger zerolog.Logger) *stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, scanInitialBuffer), scanMaxBuffer)
	return &stream{
		ctx:        ctx,
		body:       body,
		scanner:    scanner,
		credential: credential,
		logger:     logger,
	}
}

// Next advances to the next decodable event. It returns false at the
// end-of-stream sentinel, on an upstream error chunk, or on transport
// failure. A finish reason inside a chunk does not end the stream: usage
// may arrive in a later chunk, so only the sentinel is a normal stop.
func (s *stream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			// Blank keep-alives and comment lines carry nothing.
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			s.done = true
			return false
		}

		var ch chunk
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			s.logger.Warn().Err(err).Int("line_bytes", len(data)).Msg("Skipping malformed stream chunk")
			continue
		}

		if ch.Error != nil {
			s.err = decodeChunkError(ch.Error)
			s.done = true
			return false
		}

		if event := s.decodeChunk(&ch); !event.Empty() {
			s.event = event
			return true
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = classifyTransportError(s.ctx, err)
	}
	return false
}

// Event implements llm.Stream.Event.
func (s *stream) Event() *llm.StreamEvent {
	return s.event
}

// Err implements llm.Stream.Err.
func (s *stream) Err() error {
	return s.err
}

// Close releases the upstream connection. Safe on every exit path.
func (s *stream) Close() error {
	return s.body.Close()
}

// decodeChunk extracts whatever the chunk carries. Every extraction is
// independent: content, reasoning, images, annotations, usage, and finish
// reason can each be present or absent.
func (s *stream) decodeChunk(ch *chunk) *llm.StreamEvent {
	event := &llm.StreamEvent{}

	if len(ch.Choices) > 0 {
		choice := ch.Choices[0]
		event.FinishReason = choice.FinishReason

		if choice.Delta != nil {
			event.Content = choice.Delta.Content
			if text, ok := decodeReasoning(choice.Delta.Reasoning); ok {
				event.Reasoning = text
			}
			event.Annotations = decodeAnnotations(choice.Delta.Annotations)
		}

		// A terminal chunk may restate images at the message level; that
		// list wins over the delta-level one, never both.
		switch {
		case choice.Message != nil && len(choice.Message.Images) > 0:
			event.Images = decodeImages(choice.Message.Images)
		case choice.Delta != nil && len(choice.Delta.Images) > 0:
			event.Images = decodeImages(choice.Delta.Images)
		}
	}

	if ch.Usage != nil {
		event.Usage = normalizeUsage(ch.Usage, s.credential)
	}

	return event
}

// decodeReasoning unmarshals a raw reasoning payload and flattens it.
func decodeReasoning(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return NormalizeReasoning(v)
}

func decodeImages(images []chunkImage) []string {
	var urls []string
	for _, img := range images {
		if img.ImageURL.URL != "" {
			urls = append(urls, img.ImageURL.URL)
		}
	}
	return urls
}

func decodeAnnotations(annotations []chunkAnnotation) []llm.Annotation {
	var out []llm.Annotation
	for _, a := range annotations {
		ann := llm.Annotation{Type: a.Type}
		if a.URLCitation != nil {
			ann.URL = a.URLCitation.URL
			ann.Title = a.URLCitation.Title
			ann.Content = a.URLCitation.Content
			ann.StartIndex = a.URLCitation.StartIndex
			ann.EndIndex = a.URLCitation.EndIndex
		}
		out = append(out, ann)
	}
	return out
}

func decodeChunkError(e *chunkError) *llm.Error {
	gwErr := &llm.Error{
		Type:      llm.ErrorTypeProvider,
		Message:   e.Message,
		Retryable: false,
	}
	if code, ok := e.Code.(float64); ok {
		gwErr.StatusCode = int(code)
	}
	return gwErr
}

// Ensure stream implements llm.Stream
var _ llm.Stream = (*stream)(nil)
