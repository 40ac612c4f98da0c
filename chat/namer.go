package chat

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

const (
	nameTagOpen  = "<name>"
	nameTagClose = "</name>"

	// titleRuneCap bounds persisted titles. Longer extractions are
	// truncated with an ellipsis, never rejected.
	titleRuneCap = 80
)

// TitleStore persists auto-naming outcomes. Implemented by
// conversations.Store.
type TitleStore interface {
	SetTitle(ctx context.Context, userID, conversationID, title string) error
	ClearNamingFlags(ctx context.Context, userID, conversationID string) error
}

// NamingResult carries a persisted title plus the response text with the
// naming tag stripped, so the caller can swap its visible state without
// another round trip.
type NamingResult struct {
	Title           string
	CleanedResponse string
}

// Namer extracts and persists conversation titles from first responses.
type Namer struct {
	store  TitleStore
	logger zerolog.Logger
}

// NewNamer creates a namer backed by the given store.
func NewNamer(store TitleStore, logger zerolog.Logger) *Namer {
	return &Namer{
		store:  store,
		logger: logger.With().Str("component", "namer").Logger(),
	}
}

// Name scans the accumulated response for the title tag. On success the
// title is persisted and returned along with the tag-stripped response.
// Every failure path clears the naming flags, keeps the placeholder title,
// and returns nil; naming never surfaces an error to the caller.
func (n *Namer) Name(ctx context.Context, userID, conversationID, response string) *NamingResult {
	title, cleaned, ok := extractTitle(response)
	if !ok {
		n.logger.Warn().
			Str("conversation_id", conversationID).
			Msg("No usable title in response, keeping placeholder")
		n.clearFlags(ctx, userID, conversationID)
		return nil
	}

	if err := n.store.SetTitle(ctx, userID, conversationID, title); err != nil {
		n.logger.Warn().
			Err(err).
			Str("conversation_id", conversationID).
			Str("title", title).
			Msg("Failed to persist conversation title")
		n.clearFlags(ctx, userID, conversationID)
		return nil
	}

	n.logger.Info().
		Str("conversation_id", conversationID).
		Str("title", title).
		Msg("Conversation named")
	return &NamingResult{Title: title, CleanedResponse: cleaned}
}

// Skip spends a conversation's naming window without setting a title, used
// when a persona or custom prompt suppressed the naming instruction on the
// first turn.
func (n *Namer) Skip(ctx context.Context, userID, conversationID string) {
	n.clearFlags(ctx, userID, conversationID)
}

func (n *Namer) clearFlags(ctx context.Context, userID, conversationID string) {
	if err := n.store.ClearNamingFlags(ctx, userID, conversationID); err != nil {
		n.logger.Warn().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("Failed to clear naming flags")
	}
}

// extractTitle pulls the first <name> tag out of the response. The
// returned cleaned text has the whole tag removed.
func extractTitle(response string) (title, cleaned string, ok bool) {
	start := strings.Index(response, nameTagOpen)
	if start < 0 {
		return "", "", false
	}
	rest := response[start+len(nameTagOpen):]
	end := strings.Index(rest, nameTagClose)
	if end < 0 {
		return "", "", false
	}

	title = sanitizeTitle(rest[:end])
	if title == "" {
		return "", "", false
	}

	cleaned = strings.TrimSpace(response[:start] + rest[end+len(nameTagClose):])
	return title, cleaned, true
}

// sanitizeTitle strips control characters, collapses whitespace runs, and
// clamps the result to the rune cap.
func sanitizeTitle(raw string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, raw)

	collapsed := strings.Join(strings.Fields(stripped), " ")
	runes := []rune(collapsed)
	if len(runes) > titleRuneCap {
		return string(runes[:titleRuneCap]) + "…"
	}
	return collapsed
}
