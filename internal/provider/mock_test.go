package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/dreamforge/api/internal/model"
)

func TestMockGenerateDeterministic(t *testing.T) {
	m := NewMock()
	m.Delay = 0
	seed := int64(42)
	req := Request{Type: model.JobTypeVideo, Prompt: "sunrise", Seed: &seed}

	a, err := m.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, _ := m.Generate(context.Background(), req)
	if a != b {
		t.Errorf("same request must yield same URL: %q vs %q", a, b)
	}

	req.Prompt = "sunset"
	c, _ := m.Generate(context.Background(), req)
	if c == a {
		t.Error("different prompt must yield a different URL")
	}

	req.ReferenceURL = a
	d, _ := m.Generate(context.Background(), req)
	if d == c {
		t.Error("reference URL must influence the output")
	}
}

func TestMockExtensionByType(t *testing.T) {
	m := NewMock()
	m.Delay = 0
	cases := map[model.JobType]string{
		model.JobTypeImage: ".png",
		model.JobTypeVideo: ".mp4",
		model.JobType3D:    ".glb",
		model.JobTypeCAD:   ".step",
	}
	for jobType, ext := range cases {
		url, err := m.Generate(context.Background(), Request{Type: jobType, Prompt: "x"})
		if err != nil {
			t.Fatalf("%s: generate failed: %v", jobType, err)
		}
		if !strings.HasSuffix(url, ext) {
			t.Errorf("%s: expected suffix %s, got %s", jobType, ext, url)
		}
	}
}

func TestMockMediaToolsStitch(t *testing.T) {
	m := NewMockMediaTools()
	a, err := m.Stitch(context.Background(), []string{"https://x.test/1.mp4", "https://x.test/2.mp4"})
	if err != nil {
		t.Fatalf("stitch failed: %v", err)
	}
	b, _ := m.Stitch(context.Background(), []string{"https://x.test/1.mp4", "https://x.test/2.mp4"})
	if a != b {
		t.Error("stitch must be deterministic for the same inputs")
	}
	c, _ := m.Stitch(context.Background(), []string{"https://x.test/2.mp4", "https://x.test/1.mp4"})
	if c == a {
		t.Error("stitch must depend on input order")
	}
}

func TestMockMediaToolsUpscalePassthrough(t *testing.T) {
	m := NewMockMediaTools()
	url := "https://x.test/raw.png"
	out, err := m.Upscale(context.Background(), url, 1)
	if err != nil {
		t.Fatalf("upscale failed: %v", err)
	}
	if out != url {
		t.Errorf("factor 1 must be a passthrough, got %s", out)
	}
}
