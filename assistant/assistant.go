package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/isdmx/coderun/config"
)

// Message roles accepted in a conversation history
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryLimit is the number of prior messages forwarded with a question
const HistoryLimit = 3

// OfflineAnswer is returned whenever the completion service is unavailable
const OfflineAnswer = "I'm currently running in **Offline Mode** and couldn't match that query to my local database. \n\n" +
	"However, I can help you write code! Try asking for a *\"Python loop example\"* or *\"Java class structure\"*."

const systemPrompt = `You are the Coderun AI Assistant.

CORE BEHAVIOR:
- Always answer simple questions directly.
- Never ask for clarification for general knowledge questions.
- If the user asks for code, give a working code example in a code block.
- Output must be SHORT, CLEAR, and DIRECT.
- Do not explain what you can do. Just answer.`

const maxCompletionTokens = 1000

var errEmptyAnswer = errors.New("empty completion")

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Assistant answers coding questions
type Assistant interface {
	Ask(ctx context.Context, question, language string, history []Message) (string, error)
}

// Client answers questions through an OpenAI compatible chat completions API.
// A Client without an API key always answers with OfflineAnswer.
type Client struct {
	logger *zap.Logger
	client *openai.Client
	model  string
}

// New creates a Client. An empty apiKey puts the client in offline mode.
func New(logger *zap.Logger, baseURL, apiKey, model string) *Client {
	c := &Client{logger: logger, model: model}
	if apiKey == "" {
		return c
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	c.client = &client
	return c
}

// NewFromConfig creates a Client from the assistant configuration section
func NewFromConfig(logger *zap.Logger, cfg *config.Config) *Client {
	return New(logger, cfg.Assistant.BaseURL, cfg.Assistant.APIKey, cfg.Assistant.Model)
}

// Online reports whether the client talks to a completion service
func (c *Client) Online() bool {
	return c.client != nil
}

// Ask answers question. Failures of the completion service are logged and
// replaced by OfflineAnswer, so the returned error is always nil.
func (c *Client) Ask(ctx context.Context, question, language string, history []Message) (string, error) {
	if !c.Online() {
		return OfflineAnswer, nil
	}

	answer, err := c.complete(ctx, question, language, history)
	if err != nil {
		c.logger.Warn("Assistant switching to offline answer", zap.Error(err))
		return OfflineAnswer, nil
	}
	return answer, nil
}

func (c *Client) complete(ctx context.Context, question, language string, history []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            buildMessages(question, language, history),
		MaxCompletionTokens: openai.Int(maxCompletionTokens),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errEmptyAnswer
	}

	answer := strings.TrimSpace(completion.Choices[0].Message.Content)
	if answer == "" {
		return "", errEmptyAnswer
	}
	return answer, nil
}

func buildMessages(question, language string, history []Message) []openai.ChatCompletionMessageParamUnion {
	prompt := systemPrompt
	if language != "" {
		prompt += "\n\nThe user is currently editing " + language + " code."
	}

	out := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(prompt)}
	for _, m := range FilterHistory(history) {
		switch m.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return append(out, openai.UserMessage(question))
}

// FilterHistory keeps user and assistant messages and returns at most the
// last HistoryLimit of them
func FilterHistory(history []Message) []Message {
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			kept = append(kept, m)
		}
	}
	if len(kept) > HistoryLimit {
		kept = kept[len(kept)-HistoryLimit:]
	}
	return kept
}
