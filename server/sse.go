package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aschepis/backscratcher/relay/chat"
)

const doneSentinel = "[DONE]"

// eventStream writes relay events to an HTTP response as `data:`-framed
// events. Headers commit lazily on the first write so that failures before
// any event can still produce a normal error response.
type eventStream struct {
	c         *gin.Context
	committed bool
}

func newEventStream(c *gin.Context) *eventStream {
	return &eventStream{c: c}
}

var _ chat.EventWriter = (*eventStream)(nil)

func (s *eventStream) commit() {
	if s.committed {
		return
	}
	header := s.c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.c.Writer.WriteHeader(http.StatusOK)
	s.committed = true
}

// WriteEvent sends one JSON event frame and flushes it immediately.
func (s *eventStream) WriteEvent(event *chat.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.write(payload)
}

// WriteSentinel sends the end-of-stream marker.
func (s *eventStream) WriteSentinel() error {
	return s.write([]byte(doneSentinel))
}

// HeadersCommitted reports whether the response status has been sent.
func (s *eventStream) HeadersCommitted() bool { return s.committed }

func (s *eventStream) write(payload []byte) error {
	s.commit()
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}
