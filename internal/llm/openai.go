package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

const (
	defaultChatTimeout     = 30 * time.Second
	defaultChatTemperature = 0.2
	maxCompletionTokens    = 800
)

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		model:  model,
		client: &cli,
	}, nil
}

func (c *OpenAIClient) Answer(ctx context.Context, orgID, question, contextText string) (string, float32, error) {
	if c == nil || c.client == nil {
		return "", 0, fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, defaultChatTimeout)
	defer cancel()

	messages := buildMessages(systemPrompt(orgID), userPrompt(orgID, question, contextText))
	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		Temperature:         openai.Float(defaultChatTemperature),
		MaxCompletionTokens: openai.Int(maxCompletionTokens),
	})
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", 0, fmt.Errorf("openai: no choices returned")
	}
	answer := resp.Choices[0].Message.Content
	return answer, deriveConfidence(answer), nil
}

func systemPrompt(orgID string) string {
	return fmt.Sprintf("You are an intelligent assistant for organization '%s'. "+
		"You answer user questions based on the context provided from the organization's documents. "+
		"If the information is not in the context, say that you cannot answer based on the available documents. "+
		"Always be helpful and provide accurate information based on the organization's data.", orgID)
}

func userPrompt(orgID, question, contextText string) string {
	return fmt.Sprintf("Context from organization '%s' documents:\n%s\n\nQuestion:\n%s", orgID, contextText, question)
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}

// deriveConfidence returns a simple heuristic confidence based on answer length.
// This is not a model-provided probability; it just scales with content size.
func deriveConfidence(answer string) float32 {
	if answer == "" {
		return 0
	}
	score := 0.5 + 0.5*math.Tanh(float64(len(answer))/200.0)
	return float32(score)
}
