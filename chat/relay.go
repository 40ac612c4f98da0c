package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/conversations"
	"github.com/aschepis/backscratcher/relay/llm"
)

// OutboundEvent is one downstream stream payload. Fields absent from a
// given event marshal away entirely, so a content delta is just
// {"content":"..."}.
type OutboundEvent struct {
	Content         string           `json:"content,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Images          []string         `json:"images,omitempty"`
	Annotations     []llm.Annotation `json:"annotations,omitempty"`
	Usage           *llm.Usage       `json:"usage,omitempty"`
	ChatName        string           `json:"chatName,omitempty"`
	CleanedResponse string           `json:"cleanedResponse,omitempty"`
	FinishReason    string           `json:"finish_reason,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// EventWriter is the downstream half of the relay. HeadersCommitted tells
// the relay whether a failure can still be surfaced synchronously or must
// ride the already-open stream as one final error event.
type EventWriter interface {
	WriteEvent(event *OutboundEvent) error
	WriteSentinel() error
	HeadersCommitted() bool
}

// Gate throttles callers before any upstream work begins. Implemented by
// ratelimit.Gate.
type Gate interface {
	Allow(callerID string) bool
}

// ConversationStore is the persistence surface the relay reads directly.
// Implemented by conversations.Store.
type ConversationStore interface {
	Ensure(ctx context.Context, userID, conversationID, title string) (*conversations.Conversation, error)
}

// Relay drives one caller stream backed by one upstream stream. Instances
// are safe for concurrent use; all per-request state lives in Serve.
type Relay struct {
	client  llm.Client
	builder *Builder
	namer   *Namer
	store   ConversationStore
	gate    Gate
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRelay creates a relay. The gate may be nil to disable throttling.
// timeout is the overall stream duration ceiling.
func NewRelay(client llm.Client, builder *Builder, namer *Namer, store ConversationStore, gate Gate, timeout time.Duration, logger zerolog.Logger) *Relay {
	return &Relay{
		client:  client,
		builder: builder,
		namer:   namer,
		store:   store,
		gate:    gate,
		timeout: timeout,
		logger:  logger.With().Str("component", "relay").Logger(),
	}
}

// Serve relays one request. A non-nil return means nothing was written
// downstream and the caller should surface the error synchronously; once
// events start flowing every failure rides the stream itself.
func (r *Relay) Serve(ctx context.Context, req *Request, w EventWriter) error {
	if r.gate != nil && !r.gate.Allow(req.UserID) {
		return llm.NewRateLimitError("too many requests", nil, nil)
	}

	conv, err := r.store.Ensure(ctx, req.UserID, req.ConversationID, req.Title)
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}

	upstream, namingRequested := r.builder.Build(ctx, req, conv)

	streamCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stream, err := r.client.Stream(streamCtx, upstream)
	if err != nil {
		return err
	}
	defer func() {
		_ = stream.Close()
	}()

	// The accumulated response only matters to the Auto-Namer, so skip
	// the buffering entirely when naming is not armed.
	var response strings.Builder

	for stream.Next() {
		ev := stream.Event()

		if namingRequested {
			response.WriteString(ev.Content)
		}

		out := &OutboundEvent{
			Content:      ev.Content,
			Reasoning:    ev.Reasoning,
			Images:       ev.Images,
			Annotations:  ev.Annotations,
			Usage:        ev.Usage,
			FinishReason: ev.FinishReason,
		}
		if err := w.WriteEvent(out); err != nil {
			// The caller went away. Release the upstream reader and stop;
			// there is nobody left to report to.
			r.logger.Debug().Err(err).Msg("Downstream write failed, aborting relay")
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		return r.streamFailure(w, err)
	}

	// Normal completion. Resolve the naming side effect before the
	// sentinel so the caller sees the title on the same stream.
	if conv.NamingEligible() {
		if !namingRequested {
			r.namer.Skip(ctx, req.UserID, req.ConversationID)
		} else if result := r.namer.Name(ctx, req.UserID, req.ConversationID, response.String()); result != nil {
			named := &OutboundEvent{ChatName: result.Title, CleanedResponse: result.CleanedResponse}
			if err := w.WriteEvent(named); err != nil {
				r.logger.Debug().Err(err).Msg("Downstream write failed on naming event")
				return nil
			}
		}
	}

	if err := w.WriteSentinel(); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to write stream sentinel")
	}
	return nil
}

// streamFailure surfaces a mid-stream or transport failure. Before headers
// commit the error can still propagate synchronously; afterwards the only
// channel left is one terminal error event on the open stream, which also
// ends it (no sentinel follows an error).
func (r *Relay) streamFailure(w EventWriter, err error) error {
	if !w.HeadersCommitted() {
		return err
	}

	r.logger.Warn().Err(err).Msg("Stream failed mid-flight")
	terminal := &OutboundEvent{Error: err.Error(), FinishReason: "error"}
	if werr := w.WriteEvent(terminal); werr != nil {
		r.logger.Debug().Err(werr).Msg("Failed to write terminal error event")
	}
	return nil
}
