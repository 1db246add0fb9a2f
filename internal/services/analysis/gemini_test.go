package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestAnalyzeUnavailableWithoutKey(t *testing.T) {
	a, err := NewGeminiAnalyzer(context.Background(), "", "gemini-1.5-flash-latest", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Available() {
		t.Fatal("analyzer without key must be unavailable")
	}
	if _, err := a.Analyze(context.Background(), writeImage(t), "p"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestAnalyzeJoinsAndTrimsParts(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  Smoke near ", "the conveyor.\n")}
	a := &GeminiAnalyzer{models: gen, model: "m"}

	got, err := a.Analyze(context.Background(), writeImage(t), "describe")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != "Smoke near the conveyor." {
		t.Fatalf("got %q", got)
	}
	if gen.model != "m" || len(gen.contents) != 1 || len(gen.contents[0].Parts) != 2 {
		t.Fatalf("unexpected request: model=%q contents=%v", gen.model, gen.contents)
	}
	if gen.contents[0].Parts[1].InlineData == nil || gen.contents[0].Parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Fatal("image part missing")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason:        genai.BlockedReasonSafety,
			BlockReasonMessage: "unsafe",
		},
	}
	tests := []struct {
		name string
		gen  *fakeGenerator
		path string
		want error
	}{
		{"blocked", &fakeGenerator{resp: blocked}, "", ErrBlocked},
		{"empty", &fakeGenerator{resp: textResponse("   ")}, "", ErrEmptyResult},
		{"nil response", &fakeGenerator{}, "", ErrEmptyResult},
		{"missing image", &fakeGenerator{resp: textResponse("x")}, "/nonexistent/frame.jpg", ErrImageMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = writeImage(t)
			}
			a := &GeminiAnalyzer{models: tt.gen, model: "m"}
			if _, err := a.Analyze(context.Background(), path, "p"); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnalyzeWrapsTransportError(t *testing.T) {
	a := &GeminiAnalyzer{models: &fakeGenerator{err: errors.New("quota")}, model: "m"}
	_, err := a.Analyze(context.Background(), writeImage(t), "p")
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("err = %v", err)
	}
}

func TestPromptsMentionContext(t *testing.T) {
	for _, p := range []string{ServicePrompt("fire", "File: a.mp4", "Gudang"), CLIPrompt("fire", "File: a.mp4", "Gudang")} {
		for _, want := range []string{"fire", "File: a.mp4", "Gudang"} {
			if !strings.Contains(p, want) {
				t.Errorf("prompt %q missing %q", p, want)
			}
		}
	}
}
