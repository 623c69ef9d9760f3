package llm

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

// Model families that reject the penalty parameters.
var noPenaltyModels = []string{"hunyuan"}

// OpenAIProvider talks to any OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	client  openai.Client
	name    string
	model   string
	timeout time.Duration
}

// NewOpenAI creates a client for baseURL. An empty baseURL uses the
// OpenAI API.
func NewOpenAI(name, apiKey, baseURL, model string, timeout time.Duration) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		name:    name,
		model:   model,
		timeout: timeout,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if acceptsPenalties(p.model) {
		params.FrequencyPenalty = openai.Float(req.FrequencyPenalty)
		params.PresencePenalty = openai.Float(req.PresencePenalty)
	}

	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return Response{}, wrapErr(p.name, p.model, ctx, err)
	}

	out := Response{Usage: Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}}
	if len(resp.Choices) == 0 {
		return out, &ProviderError{Provider: p.name, Model: p.model, Err: ErrEmptyResponse}
	}

	msg := resp.Choices[0].Message
	out.Text = strings.TrimSpace(msg.Content)
	if out.Text == "" {
		// Some reasoning models put the whole answer in reasoning_content.
		if f, ok := msg.JSON.ExtraFields["reasoning_content"]; ok && f.Valid() {
			out.Text = strings.TrimSpace(gjson.Parse(f.Raw()).String())
		}
	}
	if out.Text == "" {
		return out, &ProviderError{Provider: p.name, Model: p.model, Err: ErrEmptyResponse}
	}
	return out, nil
}

func acceptsPenalties(model string) bool {
	m := strings.ToLower(model)
	for _, family := range noPenaltyModels {
		if strings.Contains(m, family) {
			return false
		}
	}
	return true
}
