package config

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/relay/llm"
	"github.com/aschepis/backscratcher/relay/llm/gateway"
)

// LoadGatewayConfig loads gateway configuration from server config.
// It returns the connection settings to use for creating a gateway client.
func LoadGatewayConfig(cfg *ServerConfig) GatewayConfig {
	if cfg == nil {
		return GatewayConfig{}
	}

	return cfg.Gateway
}

// NewGatewayClient creates a new gateway LLM client from the configuration.
// The configured API key seeds the credential chain; callers may still
// override it per request. The returned client is wrapped with stream
// logging middleware.
func NewGatewayClient(cfg *ServerConfig, logger zerolog.Logger) (llm.Client, error) {
	gw := LoadGatewayConfig(cfg)
	credentials := llm.NewCredentialResolver(gw.APIKey)
	client, err := gateway.NewClient(gateway.Config{
		BaseURL: gw.BaseURL,
		Referer: gw.Referer,
		Title:   gw.Title,
	}, credentials, logger)
	if err != nil {
		return nil, err
	}
	return llm.WrapWithMiddleware(client, streamLogMiddleware(logger)), nil
}

// streamLogMiddleware logs stream opens and upstream failures for every
// request the client issues.
func streamLogMiddleware(logger zerolog.Logger) llm.StreamMiddleware {
	log := logger.With().Str("component", "gateway-stream").Logger()
	return llm.StreamMiddlewareFunc{
		BeforeStreamFunc: func(_ context.Context, req *llm.Request) (*llm.Request, error) {
			log.Debug().
				Str("model", req.Model).
				Int("messages", len(req.Messages)).
				Msg("Opening upstream stream")
			return req, nil
		},
		OnStreamErrorFunc: func(_ context.Context, req *llm.Request, err error) error {
			log.Warn().
				Err(err).
				Str("model", req.Model).
				Msg("Upstream stream failed")
			return err
		},
	}
}
