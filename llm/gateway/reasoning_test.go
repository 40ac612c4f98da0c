package gateway

import (
	"encoding/json"
	"testing"
)

func TestNormalizeReasoningString(t *testing.T) {
	text, ok := NormalizeReasoning("step one")
	if !ok {
		t.Fatal("Expected string payload to be extractable")
	}
	if text != "step one" {
		t.Errorf("Expected 'step one', got %q", text)
	}
}

func TestNormalizeReasoningEmptyStringIsPresent(t *testing.T) {
	text, ok := NormalizeReasoning("")
	if !ok {
		t.Fatal("Expected empty string to count as present reasoning")
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}
}

func TestNormalizeReasoningAbsent(t *testing.T) {
	for _, v := range []any{nil, 42.0, true, map[string]any{"n": 1.0}} {
		if _, ok := NormalizeReasoning(v); ok {
			t.Errorf("Expected %v to yield no reasoning", v)
		}
	}
}

func TestNormalizeReasoningDirectTextKeys(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"text key", map[string]any{"text": "via text"}, "via text"},
		{"reasoning key", map[string]any{"reasoning": "via reasoning"}, "via reasoning"},
		{"reasoning_content key", map[string]any{"reasoning_content": "via rc"}, "via rc"},
		{"summary key", map[string]any{"summary": "via summary"}, "via summary"},
		{"thinking key", map[string]any{"thinking": "via thinking"}, "via thinking"},
	}
	for _, tc := range cases {
		text, ok := NormalizeReasoning(tc.payload)
		if !ok {
			t.Errorf("%s: expected extraction to succeed", tc.name)
			continue
		}
		if text != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, text)
		}
	}
}

func TestNormalizeReasoningArray(t *testing.T) {
	payload := []any{"first ", map[string]any{"text": "second"}, 3.0}
	text, ok := NormalizeReasoning(payload)
	if !ok {
		t.Fatal("Expected array payload to be extractable")
	}
	if text != "first second" {
		t.Errorf("Expected depth-first concatenation, got %q", text)
	}
}

func TestNormalizeReasoningNestedDetails(t *testing.T) {
	raw := `{"reasoning_details":[{"type":"reasoning.text","text":"part a, "},{"type":"reasoning.text","text":"part b"}]}`
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("Failed to build payload: %v", err)
	}

	text, ok := NormalizeReasoning(payload)
	if !ok {
		t.Fatal("Expected nested details to be extractable")
	}
	if text != "part a, part b" {
		t.Errorf("Expected 'part a, part b', got %q", text)
	}
}

func TestNormalizeReasoningGenericFallback(t *testing.T) {
	payload := map[string]any{
		"zeta":  "second",
		"alpha": "first",
	}
	text, ok := NormalizeReasoning(payload)
	if !ok {
		t.Fatal("Expected fallback scan to extract values")
	}
	if text != "firstsecond" {
		t.Errorf("Expected deterministic key-ordered scan, got %q", text)
	}
}

func TestNormalizeReasoningKnownKeySuppressesFallback(t *testing.T) {
	payload := map[string]any{
		"text":  "wanted",
		"other": "unwanted",
	}
	text, ok := NormalizeReasoning(payload)
	if !ok {
		t.Fatal("Expected extraction to succeed")
	}
	if text != "wanted" {
		t.Errorf("Expected known key to suppress the generic scan, got %q", text)
	}
}

func TestNormalizeReasoningIdempotent(t *testing.T) {
	payload := map[string]any{"reasoning_details": []any{"a", map[string]any{"text": "b"}}}
	once, ok := NormalizeReasoning(payload)
	if !ok {
		t.Fatal("Expected extraction to succeed")
	}
	twice, ok := NormalizeReasoning(once)
	if !ok {
		t.Fatal("Expected re-normalization to succeed")
	}
	if once != twice {
		t.Errorf("Expected idempotence, got %q then %q", once, twice)
	}
}

func TestNormalizeReasoningSelfReferentialTerminates(t *testing.T) {
	cyclic := map[string]any{"text": "before the loop"}
	cyclic["self"] = cyclic

	text, ok := NormalizeReasoning(cyclic)
	if !ok {
		t.Fatal("Expected extraction to succeed on cyclic payload")
	}
	if text != "before the loop" {
		t.Errorf("Expected leaf before the cycle, got %q", text)
	}

	pure := map[string]any{}
	pure["self"] = pure
	if _, ok := NormalizeReasoning(pure); ok {
		t.Error("Expected pure cycle to yield no reasoning")
	}

	cyclicSlice := make([]any, 1)
	cyclicSlice[0] = cyclicSlice
	if _, ok := NormalizeReasoning(cyclicSlice); ok {
		t.Error("Expected self-referential slice to yield no reasoning")
	}
}
