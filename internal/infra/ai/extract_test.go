package ai

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // expected value of "category"; "" means nil result
	}{
		{"direct", `{"category":"devops"}`, "devops"},
		{"fenced", "```json\n{\"category\":\"devops\"}\n```", "devops"},
		{"fenced no hint", "```\n{\"category\":\"devops\"}\n```", "devops"},
		{"prose wrapped", `Sure! Here is the result: {"category":"devops"} Hope that helps.`, "devops"},
		{"nested braces", `prefix {"category":"devops","extra":{"a":1}} suffix`, "devops"},
		{"no json", "I could not classify this repository.", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected an object, got nil")
			}
			if got["category"] != tt.want {
				t.Errorf("category = %v, want %s", got["category"], tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	got := ExtractJSONArray("```json\n[{\"index\":0},{\"index\":1}]\n```")
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}

	got = ExtractJSONArray(`The results are: [{"index":0}] as requested`)
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}

	if got := ExtractJSONArray("no array here"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
