package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/aschepis/backscratcher/relay/llm"
)

// goleakOptions filters goroutines owned by the shared HTTP transport,
// which outlive individual tests by design.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL: baseURL,
		Referer: "https://relay.example.com",
		Title:   "relayd",
	}, llm.NewCredentialResolver("server-key"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func testRequest() *llm.Request {
	return &llm.Request{
		Model: "anthropic/claude-sonnet-4",
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleUser, "hi"),
		},
		MaxTokens: 64,
	}
}

func TestClientStreamHappyPath(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	var gotAuth, gotReferer, gotTitle, gotAccept string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hey\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	stream, err := client.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	events := collectEvents(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("Unexpected stream error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].Content != "hey" {
		t.Errorf("Expected content 'hey', got %q", events[0].Content)
	}

	if gotAuth != "Bearer server-key" {
		t.Errorf("Expected bearer auth with server key, got %q", gotAuth)
	}
	if gotReferer != "https://relay.example.com" {
		t.Errorf("Expected attribution referer, got %q", gotReferer)
	}
	if gotTitle != "relayd" {
		t.Errorf("Expected attribution title, got %q", gotTitle)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Expected event-stream accept header, got %q", gotAccept)
	}
	if gotBody.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("Expected model in body, got %q", gotBody.Model)
	}
	if !gotBody.Stream {
		t.Error("Expected stream enabled in body")
	}
	if gotBody.MaxTokens != 64 {
		t.Errorf("Expected max_tokens 64 in body, got %d", gotBody.MaxTokens)
	}
}

func TestClientStreamPreStreamErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	cases := []struct {
		name          string
		status        int
		body          string
		retryAfter    string
		wantType      llm.ErrorType
		wantRetryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid key","code":401}}`, "", llm.ErrorTypeAuth, false},
		{"forbidden", http.StatusForbidden, `{"error":{"message":"key disabled","code":403}}`, "", llm.ErrorTypeAuth, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","code":429}}`, "30", llm.ErrorTypeRateLimit, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"unknown field","code":400}}`, "", llm.ErrorTypeInvalidRequest, false},
		{"too large", http.StatusRequestEntityTooLarge, `{"error":{"message":"context too long","code":413}}`, "", llm.ErrorTypeRequestTooLarge, false},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","code":500}}`, "", llm.ErrorTypeProvider, true},
		{"plain text body", http.StatusBadGateway, "upstream exploded", "", llm.ErrorTypeProvider, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Stream(context.Background(), testRequest())
			if err == nil {
				t.Fatal("Expected pre-stream error")
			}

			var gwErr *llm.Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("Expected *llm.Error, got %T", err)
			}
			if gwErr.Type != tc.wantType {
				t.Errorf("Expected error type %v, got %v", tc.wantType, gwErr.Type)
			}
			if gwErr.Retryable != tc.wantRetryable {
				t.Errorf("Expected retryable=%v, got %v", tc.wantRetryable, gwErr.Retryable)
			}
			if gwErr.StatusCode != tc.status {
				t.Errorf("Expected status code %d, got %d", tc.status, gwErr.StatusCode)
			}
			if tc.retryAfter != "" {
				if gwErr.RetryAfter == nil {
					t.Fatal("Expected retry-after from header")
				}
				if *gwErr.RetryAfter != 30*time.Second {
					t.Errorf("Expected retry-after 30s, got %v", *gwErr.RetryAfter)
				}
			}
		})
	}
}

func TestClientStreamNoCredential(t *testing.T) {
	t.Setenv(llm.GatewayKeyEnvVar, "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected no upstream call without credentials")
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, llm.NewCredentialResolver(""), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Stream(context.Background(), testRequest())
	if !llm.IsAuthError(err) {
		t.Errorf("Expected credential error, got %v", err)
	}
}

func TestClientStreamMissingModel(t *testing.T) {
	client := newTestClient(t, "http://gateway.invalid")
	req := testRequest()
	req.Model = ""

	_, err := client.Stream(context.Background(), req)
	if err == nil {
		t.Fatal("Expected error for missing model")
	}
	var gwErr *llm.Error
	if !errors.As(err, &gwErr) || gwErr.Type != llm.ErrorTypeInvalidRequest {
		t.Errorf("Expected invalid request error, got %v", err)
	}
}

func TestClientStreamDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Stream(ctx, testRequest())
	if !llm.IsTimeoutError(err) {
		t.Errorf("Expected timeout error when the ceiling fires, got %v", err)
	}
}

func TestClientStreamPerRequestKeyWins(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	req := testRequest()
	req.APIKey = "caller-key"

	stream, err := client.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()
	collectEvents(t, stream)

	if gotAuth != "Bearer caller-key" {
		t.Errorf("Expected caller-supplied key to win, got %q", gotAuth)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, llm.NewCredentialResolver("k"), zerolog.Nop()); err == nil {
		t.Error("Expected error for missing base URL")
	}
	if _, err := NewClient(Config{BaseURL: "http://gateway.invalid"}, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil credential resolver")
	}
}
