package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

type Generator struct {
	client       *genai.Client
	defaultModel string
	executor     *resilience.Executor
}

type Options struct {
	DefaultModel       string
	ResilienceExecutor *resilience.Executor
	ClientOptions      []option.ClientOption
}

func New(ctx context.Context, apiKey string, options Options) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "gemini new", fmt.Errorf("GEMINI_API_KEY is empty"))
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, options.ClientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Generator{
		client:       client,
		defaultModel: options.DefaultModel,
		executor:     options.ResilienceExecutor,
	}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

// Generate runs one completion. Blocked or empty completions are ErrGeneration.
func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt, params domain.GenerationParams) (string, error) {
	name := params.Model
	if name == "" {
		name = g.defaultModel
	}
	if name == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "gemini generate", fmt.Errorf("no model configured"))
	}

	model := g.client.GenerativeModel(name)
	configureModel(model, prompt, params)

	resp, err := resilience.Do(ctx, g.executor, "gemini.generate", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return model.GenerateContent(ctx, genai.Text(prompt.User))
	}, classifyGeminiError)
	if err != nil {
		return "", wrapGenerationError("gemini generate", err)
	}
	return responseText(resp)
}

func configureModel(model *genai.GenerativeModel, prompt domain.Prompt, params domain.GenerationParams) {
	model.SetTemperature(float32(params.Temperature))
	if params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(params.MaxTokens))
	}
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	if params.Permissive {
		model.SafetySettings = permissiveSafetySettings()
	}
}

func permissiveSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockNone})
	}
	return out
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("nil response"))
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("prompt blocked: %s", fb.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("no candidates"))
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonRecitation {
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("completion blocked: %s", cand.FinishReason))
	}

	var parts []string
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if text, ok := p.(genai.Text); ok && strings.TrimSpace(string(text)) != "" {
				parts = append(parts, string(text))
			}
		}
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return "", domain.WrapError(domain.ErrGeneration, "gemini generate", fmt.Errorf("empty completion"))
	}
	return out, nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if resilience.IsRetryableHTTPStatus(apiErr.Code) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

// wrapGenerationError marks every provider failure as ErrGeneration, plus ErrTemporary when transient.
func wrapGenerationError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrGeneration) {
		return err
	}
	class := classifyGeminiError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		err = domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrGeneration, operation, err)
}
