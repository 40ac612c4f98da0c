package chat

import "testing"

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name       string
		capable    bool
		historyLen int
		enabled    bool
		boundary   int
	}{
		{"incapable model", false, 12, false, -1},
		{"no history", true, 0, true, -1},
		{"history within recent window", true, 5, true, -1},
		{"history one past the window", true, 6, true, 0},
		{"long history", true, 12, true, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SelectStrategy(tt.capable, tt.historyLen)
			if s.Enabled != tt.enabled {
				t.Errorf("Expected enabled=%v, got %v", tt.enabled, s.Enabled)
			}
			if s.Boundary != tt.boundary {
				t.Errorf("Expected boundary %d, got %d", tt.boundary, s.Boundary)
			}
		})
	}
}
