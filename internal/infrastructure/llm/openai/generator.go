package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

const stopReasonContentFilter = "content_filter"

type Generator struct {
	llm          llms.Model
	defaultModel string
	executor     *resilience.Executor
}

type Options struct {
	BaseURL            string
	DefaultModel       string
	ResilienceExecutor *resilience.Executor
}

func NewGenerator(apiKey string, options Options) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai new", fmt.Errorf("OPENAI_API_KEY is empty"))
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if options.DefaultModel != "" {
		opts = append(opts, openai.WithModel(options.DefaultModel))
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &Generator{
		llm:          llm,
		defaultModel: options.DefaultModel,
		executor:     options.ResilienceExecutor,
	}, nil
}

// Generate runs one chat completion. A filtered or empty completion is ErrGeneration.
// Permissive has no OpenAI equivalent and is ignored.
func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt, params domain.GenerationParams) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.User),
	}
	callOpts := []llms.CallOption{llms.WithTemperature(params.Temperature)}
	if params.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(params.MaxTokens))
	}
	if model := firstNonEmpty(params.Model, g.defaultModel); model != "" {
		callOpts = append(callOpts, llms.WithModel(model))
	}

	resp, err := resilience.Do(ctx, g.executor, "openai.generate", func(ctx context.Context) (*llms.ContentResponse, error) {
		return g.llm.GenerateContent(ctx, messages, callOpts...)
	}, classifyOpenAIError)
	if err != nil {
		return "", wrapGenerationError("openai generate", err)
	}
	return completionText(resp)
}

func completionText(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrGeneration, "openai generate", fmt.Errorf("no choices"))
	}
	choice := resp.Choices[0]
	if choice.StopReason == stopReasonContentFilter {
		return "", domain.WrapError(domain.ErrGeneration, "openai generate", fmt.Errorf("completion blocked by content filter"))
	}
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return "", domain.WrapError(domain.ErrGeneration, "openai generate", fmt.Errorf("empty completion"))
	}
	return text, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
