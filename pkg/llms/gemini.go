package llms

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

// GeminiProvider talks to the Gemini API through the official genai SDK.
// The SDK owns the transport, including retries, so this provider carries no
// HTTP client of its own.
type GeminiProvider struct {
	config *config.LLMConfig
	client *genai.Client
}

// NewGeminiProviderFromConfig creates a provider from a validated config.
func NewGeminiProviderFromConfig(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}

	// Constructors shouldn't require a context
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		config: cfg,
		client: client,
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	contents, systemInstruction := buildGeminiContents(messages)
	genConfig := p.buildConfig(systemInstruction)
	genConfig.Tools = buildGeminiTools(tools)

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genConfig)
	if err != nil {
		return "", nil, 0, fmt.Errorf("gemini generation failed: %w", err)
	}

	return parseGeminiResponse(resp)
}

func (p *GeminiProvider) GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, int, error) {
	contents, systemInstruction := buildGeminiContents(messages)
	genConfig := p.buildConfig(systemInstruction)
	genConfig.ResponseMIMEType = "application/json"
	genConfig.ResponseSchema = toGeminiSchema(structConfig.Schema)

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genConfig)
	if err != nil {
		return "", 0, fmt.Errorf("gemini generation failed: %w", err)
	}

	text, _, tokens, err := parseGeminiResponse(resp)
	if err != nil {
		return "", 0, err
	}
	return text, tokens, nil
}

func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{
		NativeStructured: p.config.SupportsNativeStructured(),
		NativeTools:      p.config.SupportsNativeTools(),
	}
}

func (p *GeminiProvider) GetModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) GetContextWindow() int {
	return p.config.ContextWindow
}

func (p *GeminiProvider) Close() error {
	return nil
}

func (p *GeminiProvider) buildConfig(systemInstruction *genai.Content) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	if p.config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*p.config.Temperature))
	}
	if p.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(p.config.MaxTokens)
	}
	return genConfig
}

// buildGeminiContents maps the conversation onto the Gemini wire model.
// System messages become the system instruction; observations become
// function responses on the user role, or plain text when the observation
// carries no tool call id (the ReAct path).
func buildGeminiContents(messages []*protocol.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemParts []string

	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case protocol.RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Args,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})

		case protocol.RoleObservation:
			if msg.ToolCallID == "" {
				contents = append(contents, &genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: msg.Content}},
				})
				continue
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Meta["tool"],
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})

		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	var systemInstruction *genai.Content
	if len(systemParts) > 0 {
		systemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	return contents, systemInstruction
}

func buildGeminiTools(tools []ToolDefinition) []*genai.Tool {
	var geminiTools []*genai.Tool
	for _, tool := range tools {
		geminiTools = append(geminiTools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGeminiSchema(tool.Parameters),
			}},
		})
	}
	return geminiTools
}

// toGeminiSchema converts a JSON schema map to the SDK schema type. Only the
// keywords the Gemini API accepts are carried over.
func toGeminiSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				s.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		s.Items = toGeminiSchema(items)
	}
	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) (string, []*protocol.ToolCall, int, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, 0, fmt.Errorf("empty response from gemini")
	}

	var text strings.Builder
	var toolCalls []*protocol.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				// The API may omit call ids; observations need one to pair up
				id = "gemini-" + uuid.NewString()
			}
			toolCalls = append(toolCalls, &protocol.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text.String(), toolCalls, tokens, nil
}
