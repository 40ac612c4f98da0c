package gateway

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/llm"
)

func newTestStream(body string) *stream {
	return newStream(context.Background(), io.NopCloser(strings.NewReader(body)), llm.CredentialSourceServer, zerolog.Nop())
}

func collectEvents(t *testing.T, s llm.Stream) []*llm.StreamEvent {
	t.Helper()
	var events []*llm.StreamEvent
	for s.Next() {
		events = append(events, s.Event())
	}
	return events
}

func TestStreamDecodesContentDeltas(t *testing.T) {
	body := "data: {\"id\":\"gen-1\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"id\":\"gen-1\",\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("Unexpected stream error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Content != "Hel" || events[1].Content != "lo" {
		t.Errorf("Expected content deltas 'Hel', 'lo', got %q, %q", events[0].Content, events[1].Content)
	}
}

func TestStreamByteSplitEquivalence(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"alpha\",\"reasoning\":\"because\"}}]}\n\n" +
		": keep-alive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"beta\"},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":5}}\n\n" +
		"data: [DONE]\n\n"

	whole := newTestStream(body)
	wholeEvents := collectEvents(t, whole)
	if err := whole.Err(); err != nil {
		t.Fatalf("Unexpected stream error: %v", err)
	}

	split := newStream(context.Background(), io.NopCloser(iotest.OneByteReader(strings.NewReader(body))), llm.CredentialSourceServer, zerolog.Nop())
	splitEvents := collectEvents(t, split)
	if err := split.Err(); err != nil {
		t.Fatalf("Unexpected stream error on byte-split read: %v", err)
	}

	if !reflect.DeepEqual(wholeEvents, splitEvents) {
		t.Errorf("Expected identical events regardless of read boundaries, got %+v vs %+v", wholeEvents, splitEvents)
	}
}

func TestStreamSkipsMalformedChunk(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("Expected malformed chunk to be skipped, got error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected exactly 2 events around the malformed line, got %d", len(events))
	}
	if events[0].Content != "one" || events[1].Content != "two" {
		t.Errorf("Expected content 'one', 'two', got %q, %q", events[0].Content, events[1].Content)
	}
}

func TestStreamStopsAtSentinel(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"kept\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"dropped\"}}]}\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event before sentinel, got %d", len(events))
	}
	if s.Next() {
		t.Error("Expected Next to keep returning false after sentinel")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Expected no error at sentinel, got %v", err)
	}
}

func TestStreamUsageAfterFinishReason(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"done\"},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":10,\"completion_tokens\":4,\"total_tokens\":14,\"cost\":0.002}}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 2 {
		t.Fatalf("Expected the finish-reason chunk and the late usage chunk, got %d events", len(events))
	}
	if events[0].FinishReason != "stop" {
		t.Errorf("Expected finish reason 'stop', got %q", events[0].FinishReason)
	}
	if events[1].Usage == nil {
		t.Fatal("Expected usage on second event")
	}
	if events[1].Usage.TotalTokens != 14 {
		t.Errorf("Expected 14 total tokens, got %d", events[1].Usage.TotalTokens)
	}
	if events[1].Usage.Credential != llm.CredentialSourceServer {
		t.Errorf("Expected usage credited to %q, got %q", llm.CredentialSourceServer, events[1].Usage.Credential)
	}
}

func TestStreamErrorChunk(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n" +
		"data: {\"error\":{\"code\":429,\"message\":\"provider overloaded\"}}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"after\"}}]}\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event before the error chunk, got %d", len(events))
	}

	err := s.Err()
	if err == nil {
		t.Fatal("Expected stream error after error chunk")
	}
	var gwErr *llm.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("Expected *llm.Error, got %T", err)
	}
	if gwErr.Type != llm.ErrorTypeProvider {
		t.Errorf("Expected provider error type, got %v", gwErr.Type)
	}
	if gwErr.Message != "provider overloaded" {
		t.Errorf("Expected upstream message preserved, got %q", gwErr.Message)
	}
	if gwErr.StatusCode != 429 {
		t.Errorf("Expected status code 429 from error chunk, got %d", gwErr.StatusCode)
	}
}

func TestStreamIgnoresCommentsAndBlankLines(t *testing.T) {
	body := ": GATEWAY PROCESSING\n\n" +
		"\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		": still processing\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("Unexpected stream error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
}

func TestStreamPrefersMessageImages(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"images\":[{\"type\":\"image_url\",\"image_url\":{\"url\":\"https://img.example.com/delta\"}}]},\"message\":{\"images\":[{\"type\":\"image_url\",\"image_url\":{\"url\":\"https://img.example.com/message\"}}]}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(events[0].Images) != 1 {
		t.Fatalf("Expected the lists to never merge, got %d images", len(events[0].Images))
	}
	if events[0].Images[0] != "https://img.example.com/message" {
		t.Errorf("Expected message-level image to win, got %q", events[0].Images[0])
	}
}

func TestStreamDeltaImagesWhenNoMessageImages(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"images\":[{\"type\":\"image_url\",\"image_url\":{\"url\":\"https://img.example.com/delta\"}}]}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(events[0].Images) != 1 || events[0].Images[0] != "https://img.example.com/delta" {
		t.Errorf("Expected delta-level image, got %v", events[0].Images)
	}
}

func TestStreamDropsEmptyChunks(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"real\"}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected empty chunks to be dropped, got %d events", len(events))
	}
	if events[0].Content != "real" {
		t.Errorf("Expected content 'real', got %q", events[0].Content)
	}
}

func TestStreamDecodesAnnotations(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"annotations\":[{\"type\":\"url_citation\",\"url_citation\":{\"url\":\"https://example.com\",\"title\":\"Example\",\"start_index\":0,\"end_index\":10}}]}}]}\n\n" +
		"data: [DONE]\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if len(events[0].Annotations) != 1 {
		t.Fatalf("Expected 1 annotation, got %d", len(events[0].Annotations))
	}
	ann := events[0].Annotations[0]
	if ann.URL != "https://example.com" || ann.Title != "Example" || ann.EndIndex != 10 {
		t.Errorf("Expected citation fields preserved, got %+v", ann)
	}
}

func TestStreamEndsCleanlyWithoutSentinel(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\n\n"

	s := newTestStream(body)
	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if err := s.Err(); err != nil {
		t.Errorf("Expected clean end on EOF without sentinel, got %v", err)
	}
}

func TestStreamTransportError(t *testing.T) {
	broken := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"),
		iotest.ErrReader(errors.New("connection reset")),
	)
	s := newStream(context.Background(), io.NopCloser(broken), llm.CredentialSourceServer, zerolog.Nop())

	events := collectEvents(t, s)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event before transport failure, got %d", len(events))
	}

	err := s.Err()
	if err == nil {
		t.Fatal("Expected transport error")
	}
	var gwErr *llm.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("Expected *llm.Error, got %T", err)
	}
	if gwErr.Type != llm.ErrorTypeNetwork {
		t.Errorf("Expected network error type, got %v", gwErr.Type)
	}
}

func TestStreamTimeoutClassification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deadlineCtx, deadlineCancel := context.WithTimeout(context.Background(), 0)
	defer deadlineCancel()

	canceled := classifyTransportError(ctx, ctx.Err())
	if canceled.Type != llm.ErrorTypeNetwork {
		t.Errorf("Expected cancellation to classify as network, got %v", canceled.Type)
	}

	timedOut := classifyTransportError(deadlineCtx, deadlineCtx.Err())
	if timedOut.Type != llm.ErrorTypeTimeout {
		t.Errorf("Expected deadline to classify as timeout, got %v", timedOut.Type)
	}
}
