package capabilities

import "testing"

func TestRegistry_GetModelCapabilities(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	tests := []struct {
		model         string
		wantTools     bool
		wantMaxTokens int
		wantErr       bool
	}{
		{"claude-haiku-4-5-20251001", true, 8192, false},
		{"claude-sonnet-4-5-20250929", true, 16384, false},
		{"lorem-fast", false, 4096, false},
		{"lorem-tools", true, 4096, false},
		{"gpt-nonexistent", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps, err := registry.GetModelCapabilities(tt.model)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown model")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if caps.SupportsTools != tt.wantTools {
				t.Errorf("supports_tools: expected %v, got %v", tt.wantTools, caps.SupportsTools)
			}
			if caps.MaxOutputTokens != tt.wantMaxTokens {
				t.Errorf("max_output_tokens: expected %d, got %d", tt.wantMaxTokens, caps.MaxOutputTokens)
			}
		})
	}
}
