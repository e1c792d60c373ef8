// Package react implements the text protocol used to drive tool calling on
// backends without native support. The model is instructed to reply in a
// fixed grammar (Thought / Action / Action Input, or Final Answer) and its
// replies are decoded back into tool calls.
package react

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Nudge is appended as an observation when a reply cannot be decoded, giving
// the model one more chance to follow the grammar.
const Nudge = "your last reply was not parseable; reply again using the required format"

// ToolSpec describes one tool in the preamble.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Step is one decoded model reply: either a tool invocation or a final
// answer, never both.
type Step struct {
	Thought     string
	Action      string
	ActionInput map[string]interface{}
	FinalAnswer string
	IsFinal     bool
}

// ParseError reports a reply that does not follow the grammar. The raw text
// is kept so callers can log it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("react decode failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BuildPreamble renders the system instruction teaching the grammar and
// listing the available tools.
func BuildPreamble(tools []ToolSpec) string {
	var sb strings.Builder

	sb.WriteString("You have access to the following tools:\n\n")
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		if len(t.Parameters) > 0 {
			if raw, err := json.Marshal(t.Parameters); err == nil {
				sb.WriteString(fmt.Sprintf("  Parameters (JSON schema): %s\n", raw))
			}
		}
	}

	sb.WriteString(`
To use a tool, reply in exactly this format:

Thought: what you are thinking about the next step
Action: the tool name, one of the tools listed above
Action Input: the tool arguments as a single JSON object

You will then receive an Observation with the tool result, and you may
repeat the cycle. When you are done, reply instead with:

Thought: your closing reasoning
Final Answer: your complete answer

Never produce both an Action and a Final Answer in the same reply.`)

	return sb.String()
}

// FormatObservation renders a tool result for the model's next turn.
func FormatObservation(content string) string {
	return fmt.Sprintf("Observation: %s", content)
}

// Encode renders a Step in the reply grammar, the exact format the preamble
// teaches. Encoding then decoding is the identity on the action name and
// arguments.
func Encode(step *Step) (string, error) {
	if step.IsFinal {
		return fmt.Sprintf("Thought: %s\nFinal Answer: %s", step.Thought, step.FinalAnswer), nil
	}

	if step.Action == "" {
		return "", fmt.Errorf("step has neither an action nor a final answer")
	}
	args := step.ActionInput
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("action input is not serializable: %w", err)
	}
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s", step.Thought, step.Action, raw), nil
}

// Decode parses one model reply into a Step. A reply containing a Final
// Answer marker is terminal; otherwise an Action and Action Input are
// required and the input must be a JSON object.
func Decode(text string) (*Step, error) {
	thought := extractSection(text, "Thought:", []string{"Action:", "Final Answer:"})

	if idx := strings.Index(text, "Final Answer:"); idx >= 0 {
		return &Step{
			Thought:     thought,
			FinalAnswer: strings.TrimSpace(text[idx+len("Final Answer:"):]),
			IsFinal:     true,
		}, nil
	}

	action := extractSection(text, "Action:", []string{"Action Input:"})
	if action == "" {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("no Action or Final Answer found")}
	}
	// Models sometimes wrap the tool name in backticks or quotes
	action = strings.Trim(action, "`\"' ")

	inputIdx := strings.Index(text, "Action Input:")
	if inputIdx < 0 {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("Action without Action Input")}
	}
	inputText := strings.TrimSpace(text[inputIdx+len("Action Input:"):])

	doc, err := extractJSONObject(inputText)
	if err != nil {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("Action Input is not a JSON object: %w", err)}
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &args); err != nil {
		return nil, &ParseError{Raw: text, Err: fmt.Errorf("Action Input is not a JSON object: %w", err)}
	}

	return &Step{Thought: thought, Action: action, ActionInput: args}, nil
}

// NewCallID mints an identifier for a decoded tool call so observations can
// reference it the same way native calls are referenced.
func NewCallID() string {
	return "react-" + uuid.NewString()
}

// extractSection returns the text between a marker and the first of the
// given terminators (or end of text), trimmed.
func extractSection(text, marker string, terminators []string) string {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker):]

	end := len(rest)
	for _, t := range terminators {
		if i := strings.Index(rest, t); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(rest[:end])
}

// extractJSONObject scans for the first balanced JSON object in the text,
// tolerating markdown fences and trailing prose.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found")
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object")
}
