package gateway

import (
	"github.com/aschepis/backscratcher/relay/llm"
)

// normalizeUsage converts a wire usage payload into the neutral record.
// Missing numeric fields become zero, never absence, so downstream
// aggregation can sum without nil checks. Negative values are clamped.
func normalizeUsage(w *chunkUsage, credential string) *llm.Usage {
	if w == nil {
		return nil
	}

	u := &llm.Usage{
		Cost:             nonNegativeFloat(w.Cost),
		PromptTokens:     nonNegative(w.PromptTokens),
		CompletionTokens: nonNegative(w.CompletionTokens),
		TotalTokens:      nonNegative(w.TotalTokens),
		Credential:       credential,
	}

	// Some providers omit total_tokens. Fall back to prompt+completion,
	// then to native token counts.
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = nonNegative(w.NativePromptTokens) + nonNegative(w.NativeCompletionTokens)
	}

	if w.PromptTokensDetails != nil {
		u.CachedTokens = nonNegative(w.PromptTokensDetails.CachedTokens)
	}
	if w.CompletionTokensDetails != nil {
		u.ReasoningTokens = nonNegative(w.CompletionTokensDetails.ReasoningTokens)
	}
	if w.CostDetails != nil {
		u.UpstreamCost = nonNegativeFloat(w.CostDetails.UpstreamInferenceCost)
	}

	return u
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func nonNegativeFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
