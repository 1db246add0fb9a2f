package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

var (
	ErrUnavailable  = errors.New("analysis unavailable")
	ErrImageMissing = errors.New("image file not found for analysis")
	ErrBlocked      = errors.New("analysis blocked")
	ErrEmptyResult  = errors.New("analysis produced no usable output")
)

// generator is the slice of the genai Models service used here
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer sends an annotated frame and a prompt to a Gemini vision model
type GeminiAnalyzer struct {
	models  generator
	model   string
	timeout time.Duration
}

// NewGeminiAnalyzer creates the analyzer. An empty API key yields an analyzer that
// reports itself unavailable instead of an error, so alerting keeps working without it.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAnalyzer, error) {
	a := &GeminiAnalyzer{model: model, timeout: timeout}
	if apiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, hazard analysis disabled")
		return a, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	a.models = client.Models

	log.Info().Str("model", model).Msg("Gemini analyzer initialized")
	return a, nil
}

// Available reports whether the analyzer has a configured client
func (a *GeminiAnalyzer) Available() bool {
	return a != nil && a.models != nil
}

// Analyze returns the model's trimmed text for the image at imagePath
func (a *GeminiAnalyzer) Analyze(ctx context.Context, imagePath, prompt string) (string, error) {
	if !a.Available() {
		return "", ErrUnavailable
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrImageMissing, imagePath)
		}
		return "", fmt.Errorf("read analysis image: %w", err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{Data: data, MIMEType: "image/jpeg"}},
		},
	}}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResult
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	if text := strings.TrimSpace(sb.String()); text != "" {
		return text, nil
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("%w: %s %s", ErrBlocked, fb.BlockReason, fb.BlockReasonMessage)
	}
	return "", ErrEmptyResult
}
