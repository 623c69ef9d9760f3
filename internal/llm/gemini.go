package llm

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider generates text with the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini client. The caller must Close it.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model, timeout: timeout}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Generate sends req as a single user turn. The API has no frequency or
// presence penalty, so those fields are ignored.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	model := p.client.GenerativeModel(p.model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.SetTemperature(float32(req.Temperature))

	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := model.GenerateContent(callCtx, genai.Text(req.Prompt))
	if err != nil {
		return Response{}, wrapErr("gemini", p.model, ctx, err)
	}

	var out Response
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, &ProviderError{Provider: "gemini", Model: p.model, Err: ErrEmptyResponse}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out.Text = strings.TrimSpace(b.String())
	if out.Text == "" {
		return out, &ProviderError{Provider: "gemini", Model: p.model, Err: ErrEmptyResponse}
	}
	return out, nil
}
