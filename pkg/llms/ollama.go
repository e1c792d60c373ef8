package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepresearch/pkg/config"
	"github.com/kadirpekel/deepresearch/pkg/httpclient"
	"github.com/kadirpekel/deepresearch/pkg/protocol"
)

// OllamaProvider talks to a local Ollama server via /api/chat. Local model
// families typically lack reliable native structured output and tool
// calling, so the adapter usually drives them through JSON mode and ReAct;
// the wire support below is still complete for models that do handle both.
type OllamaProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   interface{}     `json:"format,omitempty"` // "json" or a schema object
	Options  *ollamaOptions  `json:"options,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProviderFromConfig creates a provider from a validated config.
func NewOllamaProviderFromConfig(cfg *config.LLMConfig) (*OllamaProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama provider requires a base URL")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.TransportRetries),
	)

	return &OllamaProvider{
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (string, []*protocol.ToolCall, int, error) {
	request := p.buildRequest(messages)

	for _, tool := range tools {
		request.Tools = append(request.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", nil, 0, err
	}
	if response.Error != "" {
		return "", nil, 0, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	tokens := response.PromptEvalCount + response.EvalCount

	var toolCalls []*protocol.ToolCall
	for _, tc := range response.Message.ToolCalls {
		toolCalls = append(toolCalls, &protocol.ToolCall{
			// Ollama does not mint call IDs
			ID:   "ollama-" + uuid.NewString(),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	return response.Message.Content, toolCalls, tokens, nil
}

func (p *OllamaProvider) GenerateStructured(ctx context.Context, messages []*protocol.Message, structConfig *StructuredOutputConfig) (string, int, error) {
	request := p.buildRequest(messages)

	if structConfig != nil && structConfig.Schema != nil {
		request.Format = structConfig.Schema
	} else {
		request.Format = "json"
	}

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", 0, err
	}
	if response.Error != "" {
		return "", 0, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	return response.Message.Content, response.PromptEvalCount + response.EvalCount, nil
}

func (p *OllamaProvider) Capabilities() Capabilities {
	return Capabilities{
		NativeStructured: p.config.SupportsNativeStructured(),
		NativeTools:      p.config.SupportsNativeTools(),
	}
}

func (p *OllamaProvider) GetModelName() string {
	return p.config.Model
}

func (p *OllamaProvider) GetContextWindow() int {
	return p.config.ContextWindow
}

func (p *OllamaProvider) Close() error {
	return nil
}

func (p *OllamaProvider) buildRequest(messages []*protocol.Message) ollamaRequest {
	wireMessages := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		wireMessages = append(wireMessages, toOllamaMessage(msg))
	}

	options := &ollamaOptions{
		NumPredict: p.config.MaxTokens,
		NumCtx:     p.config.ContextWindow,
	}
	if p.config.Temperature != nil {
		options.Temperature = *p.config.Temperature
	}

	return ollamaRequest{
		Model:    p.config.Model,
		Messages: wireMessages,
		Stream:   false,
		Options:  options,
	}
}

func toOllamaMessage(msg *protocol.Message) ollamaMessage {
	switch msg.Role {
	case protocol.RoleObservation:
		return ollamaMessage{Role: "tool", Content: msg.Content, ToolName: msg.ToolCallID}
	case protocol.RoleAssistant:
		wire := ollamaMessage{Role: "assistant", Content: msg.Content}
		for _, call := range msg.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, ollamaToolCall{
				Function: ollamaToolCallFunction{
					Name:      call.Name,
					Arguments: call.Args,
				},
			})
		}
		return wire
	case protocol.RoleSystem:
		return ollamaMessage{Role: "system", Content: msg.Content}
	default:
		return ollamaMessage{Role: "user", Content: msg.Content}
	}
}

func (p *OllamaProvider) makeRequest(ctx context.Context, request ollamaRequest) (*ollamaResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/api/chat", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, body)
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}
