// Package answerer composes a grounded prose answer over retrieved passages
// using a chat model with a JSON-schema constrained response.
package answerer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Answerer produces an answer to a question given supporting passages.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []Passage) (string, error)
}

// Passage is one retrieved chunk handed to the model as grounding context.
type Passage struct {
	Title string
	Text  string
}

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

type client struct {
	openai    openai.Client
	model     string
	maxTokens int
}

func New(cfg Config) (Answerer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &client{
		openai:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

const systemPrompt = `You answer questions using only the provided knowledge-base passages.
Be concise and factual. If the passages do not contain the answer, say so plainly.`

type answerSchema struct {
	Answer string `json:"answer" jsonschema_description:"The grounded answer to the user's question"`
}

func (c *client) Answer(ctx context.Context, question string, passages []Passage) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&prompt, "[%d] %s\n%s\n\n", i+1, p.Title, p.Text)
	}
	prompt.WriteString("Question: ")
	prompt.WriteString(question)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "answer",
		Description: openai.String("Grounded answer"),
		Schema:      generateSchema[answerSchema](),
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		MaxTokens: openai.Int(int64(c.maxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "answer generated",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	var out answerSchema
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	return out.Answer, nil
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
