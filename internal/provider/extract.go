package provider

import "encoding/json"

// artifactKeys is the fallback order for object-shaped task outputs.
// Providers are loose about the field name; the first present, non-empty key
// wins.
var artifactKeys = []string{
	"artifact_url",
	"output_url",
	"url",
	"video_url",
	"image_url",
	"model_url",
}

// ExtractArtifactURL normalizes a provider task output into a single
// artifact URL. The output may be a bare JSON string, an array (first
// element wins, recursively), or an object carrying the URL under one of
// several known keys. The boolean result replaces nil-sentinel checks: false
// means no artifact was present in any recognized shape.
func ExtractArtifactURL(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return "", false
		}
		return ExtractArtifactURL(arr[0])
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range artifactKeys {
			if inner, ok := obj[key]; ok {
				if url, ok := ExtractArtifactURL(inner); ok {
					return url, true
				}
			}
		}
	}
	return "", false
}
