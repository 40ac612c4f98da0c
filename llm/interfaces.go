package llm

import (
	"context"
)

// Client provides a provider-neutral interface for upstream completion calls.
// Implementations handle wire-format details internally. The relay only ever
// streams, so there is no synchronous variant.
type Client interface {
	// Stream sends a request and returns a stream of normalized events.
	// The caller should read from the returned Stream until it's done or
	// an error occurs, then Close it.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream represents a streaming response from an upstream model.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming. A nil error
	// after Next() returns false means the stream ended normally.
	Err() error

	// Close closes the stream and releases the upstream connection.
	Close() error
}

// StreamMiddleware provides hooks for decorating streaming calls.
// This allows adding cross-cutting concerns like logging without exposing
// them to the client implementation.
type StreamMiddleware interface {
	// BeforeStream is called before starting a stream.
	// It can modify the request or return an error to abort the call.
	BeforeStream(ctx context.Context, req *Request) (*Request, error)

	// OnStreamEvent is called for each stream event.
	// It can modify the event or return an error to abort the stream.
	OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error)

	// OnStreamError is called when a stream error occurs.
	OnStreamError(ctx context.Context, req *Request, err error) error
}

// StreamMiddlewareFunc is a function type that implements StreamMiddleware.
type StreamMiddlewareFunc struct {
	BeforeStreamFunc  func(ctx context.Context, req *Request) (*Request, error)
	OnStreamEventFunc func(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error)
	OnStreamErrorFunc func(ctx context.Context, req *Request, err error) error
}

// BeforeStream calls the BeforeStreamFunc if set.
func (f StreamMiddlewareFunc) BeforeStream(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeStreamFunc != nil {
		return f.BeforeStreamFunc(ctx, req)
	}
	return req, nil
}

// OnStreamEvent calls the OnStreamEventFunc if set.
func (f StreamMiddlewareFunc) OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) (*StreamEvent, error) {
	if f.OnStreamEventFunc != nil {
		return f.OnStreamEventFunc(ctx, req, event)
	}
	return event, nil
}

// OnStreamError calls the OnStreamErrorFunc if set.
func (f StreamMiddlewareFunc) OnStreamError(ctx context.Context, req *Request, err error) error {
	if f.OnStreamErrorFunc != nil {
		return f.OnStreamErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// Middleware runs in registration order for BeforeStream and per-event hooks.
func WrapWithMiddleware(client Client, middleware ...StreamMiddleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []StreamMiddleware
}

// Stream implements Client.Stream with middleware support.
func (c *clientWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeStream(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	stream, err := c.client.Stream(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			err = mw.OnStreamError(ctx, req, err)
			if err == nil {
				break // Middleware handled the error
			}
		}
		return nil, err
	}

	return &streamWithMiddleware{
		stream:     stream,
		middleware: c.middleware,
		req:        req,
		ctx:        ctx,
	}, nil
}

// streamWithMiddleware wraps a Stream with middleware.
type streamWithMiddleware struct {
	stream     Stream
	middleware []StreamMiddleware
	req        *Request
	ctx        context.Context
	event      *StreamEvent
}

// Next implements Stream.Next with middleware support.
func (s *streamWithMiddleware) Next() bool {
	if !s.stream.Next() {
		return false
	}

	event := s.stream.Event()
	if event == nil {
		return false
	}

	for _, mw := range s.middleware {
		var err error
		event, err = mw.OnStreamEvent(s.ctx, s.req, event)
		if err != nil {
			return false
		}
		if event == nil {
			return false
		}
	}

	s.event = event
	return true
}

// Event implements Stream.Event.
func (s *streamWithMiddleware) Event() *StreamEvent {
	return s.event
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	err := s.stream.Err()
	if err != nil {
		for _, mw := range s.middleware {
			err = mw.OnStreamError(s.ctx, s.req, err)
			if err == nil {
				break
			}
		}
	}
	return err
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	return s.stream.Close()
}

// Ensure streamWithMiddleware implements Stream
var _ Stream = (*streamWithMiddleware)(nil)

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)
