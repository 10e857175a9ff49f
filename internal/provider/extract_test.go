package provider

import (
	"encoding/json"
	"testing"
)

func TestExtractArtifactURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare string", `"https://x.test/a.png"`, "https://x.test/a.png", true},
		{"empty string", `""`, "", false},
		{"array first wins", `["https://x.test/a.png","https://x.test/b.png"]`, "https://x.test/a.png", true},
		{"empty array", `[]`, "", false},
		{"object artifact_url", `{"artifact_url":"https://x.test/a.png"}`, "https://x.test/a.png", true},
		{"object url", `{"url":"https://x.test/a.png"}`, "https://x.test/a.png", true},
		{"key priority", `{"video_url":"https://x.test/v.mp4","output_url":"https://x.test/o.mp4"}`, "https://x.test/o.mp4", true},
		{"nested array of objects", `[{"image_url":"https://x.test/i.png"}]`, "https://x.test/i.png", true},
		{"object with array value", `{"output_url":["https://x.test/a.png"]}`, "https://x.test/a.png", true},
		{"unknown keys", `{"id":"t1","state":"done"}`, "", false},
		{"number", `42`, "", false},
		{"empty input", ``, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractArtifactURL(json.RawMessage(tc.raw))
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("url = %q, want %q", got, tc.want)
			}
		})
	}
}
