// Package llm provides a provider-neutral abstraction layer for streaming
// Large Language Model (LLM) completions.
//
// This package defines the common types, interfaces, and utilities the relay
// uses to talk to an upstream model gateway without being tightly coupled to
// the gateway's wire format.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with a
//     role (user, assistant, system) and either a plain-text body or a list
//     of multimodal content parts (text, image reference, file reference,
//     inline audio). Text parts may carry a cache directive marking a
//     reusable prompt prefix.
//
//  2. Client Interface: The Client interface provides Stream() for streaming
//     completion calls. Implementations handle wire-format details.
//
//  3. Stream Events: The StreamEvent type is the normalized unit forwarded
//     downstream: content and reasoning deltas, image references, citation
//     annotations, usage records, and finish reasons.
//
//  4. Middleware: The StreamMiddleware interface allows adding cross-cutting
//     concerns like logging without modifying client implementations.
//
//  5. Errors: The Error type provides provider-neutral error handling with
//     support for rate limits, credential failures, the enforced stream
//     timeout, and upstream-specific error details.
//
//  6. Credentials: The CredentialResolver resolves the gateway API key
//     through an ordered fallback chain (request, server config,
//     environment) and labels the winning source for usage attribution.
//
// Usage Example
//
//	client := gateway.NewClient(...)
//
//	// Wrap with middleware
//	client = llm.WrapWithMiddleware(client, loggingMiddleware)
//
//	// Make a request
//	req := &llm.Request{
//	    Model: "anthropic/claude-sonnet-4",
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleSystem, "You are a helpful assistant."),
//	        llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	    },
//	    MaxTokens: 1024,
//	}
//
//	stream, err := client.Stream(ctx, req)
package llm
