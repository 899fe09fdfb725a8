package llm

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"

	"github.com/raphaelgruber/biocurator-go/internal/config"
)

// matchTemplate asks the model to pick the ontology term that fits a disease
// mention. Inputs: question, context.
const matchTemplate = `You are an assistant for matching disease terms. Your task is to match the disease term and evidence information provided with the most appropriate term from the disease ontology context retrieved.
Use the following pieces of retrieved context to find the best match. Each context piece represents a disease description retrieved from the database. If you cannot find a match, state that you don't know. Keep your answer concise.

Disease Term: {{.question}}
Context:
{{.context}}
Best Match:
`

// Usage is the token count a provider reported for one generation.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	matcher   prompts.PromptTemplate
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModelFrom(model, cfg.LLMModel), nil
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(model llms.Model, modelName string) *Model {
	return &Model{
		llm:       model,
		modelName: modelName,
		matcher:   prompts.NewPromptTemplate(matchTemplate, []string{"question", "context"}),
	}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Generate generates text for a single human prompt.
func (m *Model) Generate(ctx context.Context, prompt string, options ...llms.CallOption) (string, Usage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	return strings.TrimSpace(choice.Content), usageFrom(choice.GenerationInfo), nil
}

// MatchPrompt renders the term matching prompt.
func (m *Model) MatchPrompt(question string, contexts []string) (string, error) {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("Document %d:\n%s", i+1, c)
	}
	prompt, err := m.matcher.Format(map[string]any{
		"question": question,
		"context":  strings.Join(blocks, "\n\n"),
	})
	if err != nil {
		return "", fmt.Errorf("format match prompt: %w", err)
	}
	return prompt, nil
}

// MatchTerm asks the model for the ontology term among contexts that best
// fits question. Sampling is deterministic.
func (m *Model) MatchTerm(ctx context.Context, question string, contexts []string) (string, Usage, error) {
	prompt, err := m.MatchPrompt(question, contexts)
	if err != nil {
		return "", Usage{}, err
	}
	return m.Generate(ctx, prompt, llms.WithTemperature(0))
}

// usageFrom reads token counts from provider generation info. Providers use
// different keys; unknown shapes yield zero usage.
func usageFrom(info map[string]any) Usage {
	var u Usage
	for _, key := range []string{"PromptTokens", "InputTokens", "input_tokens", "prompt_eval_count"} {
		if n, ok := toInt64(info[key]); ok {
			u.InputTokens = n
			break
		}
	}
	for _, key := range []string{"CompletionTokens", "OutputTokens", "output_tokens", "eval_count"} {
		if n, ok := toInt64(info[key]); ok {
			u.OutputTokens = n
			break
		}
	}
	return u
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
