package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/llm"
)

// Bound on how much of a pre-stream error body gets read back.
const maxErrorBodyBytes = 32 * 1024

const (
	defaultHeaderTimeout    = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Config carries the gateway connection settings.
type Config struct {
	BaseURL string

	// Attribution headers the gateway uses to identify traffic sources.
	Referer string
	Title   string

	// ResponseHeaderTimeout bounds the wait for upstream response headers.
	// The client itself carries no overall timeout; streams outlive any
	// sane value, so per-call deadlines come from the request context.
	ResponseHeaderTimeout time.Duration
}

// Client implements llm.Client against the gateway's chat completions
// endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	referer     string
	title       string
	credentials *llm.CredentialResolver
	logger      zerolog.Logger
}

// NewClient creates a gateway client.
// The base URL is required; attribution headers are optional.
func NewClient(cfg Config, credentials *llm.CredentialResolver, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}

	headerTimeout := cfg.ResponseHeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = defaultHeaderTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: headerTimeout,
		TLSHandshakeTimeout:   defaultHandshakeTimeout,
	}

	return &Client{
		httpClient:  &http.Client{Transport: transport},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		referer:     cfg.Referer,
		title:       cfg.Title,
		credentials: credentials,
		logger:      logger.With().Str("component", "gateway-client").Logger(),
	}, nil
}

// Stream implements llm.Client.Stream. Credential resolution happens here,
// before any network work. A non-success response before any bytes stream
// is returned as a single structured error; once the response is streaming,
// failures surface through the stream itself.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.Model == "" {
		return nil, llm.NewInvalidRequestError("model is required", nil)
	}

	cred, err := c.credentials.Resolve(req.APIKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		gwErr := classifyStatusError(resp.StatusCode, errBody, resp.Header)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_type", string(gwErr.Type)).
			Str("model", req.Model).
			Msg("Gateway rejected request before streaming")
		return nil, gwErr
	}

	c.logger.Debug().
		Str("model", req.Model).
		Str("credential", cred.Source).
		Msg("Gateway stream opened")

	return newStream(ctx, resp.Body, cred.Source, c.logger), nil
}

// Ensure Client implements llm.Client
var _ llm.Client = (*Client)(nil)
