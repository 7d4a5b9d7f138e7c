package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 2048

// AnthropicEngine talks to the hosted Anthropic Messages API.
type AnthropicEngine struct {
	client sdk.Client
}

// NewAnthropicEngine creates an engine authenticated with apiKey. Extra
// request options (for example option.WithBaseURL in tests) are appended.
func NewAnthropicEngine(apiKey string, opts ...option.RequestOption) *AnthropicEngine {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &AnthropicEngine{client: sdk.NewClient(append(base, opts...)...)}
}

func (e *AnthropicEngine) Name() string { return "anthropic" }

// IsRunning always reports true; the hosted API has no cheap health probe
// and failures surface on the first Chat call.
func (e *AnthropicEngine) IsRunning(context.Context) bool { return true }

func (e *AnthropicEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: anthropicMaxTokens,
	}

	var system []string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Images)+1)
			for _, img := range m.Images {
				blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, img.Data))
			}
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
			params.Messages = append(params.Messages, sdk.NewUserMessage(blocks...))
		}
	}

	if jsonSchema != nil {
		schemaJSON, err := json.Marshal(jsonSchema)
		if err != nil {
			return "", fmt.Errorf("encoding schema: %w", err)
		}
		system = append(system, "Respond with a single JSON object and nothing else. It must match this JSON Schema:\n"+string(schemaJSON))
	}
	for _, s := range system {
		params.System = append(params.System, sdk.TextBlockParam{Text: s})
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Backend: e.Name(), Code: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := b.String()
	if jsonSchema != nil {
		out = stripCodeFence(out)
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
