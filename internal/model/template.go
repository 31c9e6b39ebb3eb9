package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Tool-call framing tokens. Models trained for tool calling emit the
// call as a JSON object wrapped in these tags; the grammar below only
// activates once the opening tag appears (lazy trigger), leaving plain
// prose generation unconstrained.
const (
	toolCallOpenTag  = "<tool_call>"
	toolCallCloseTag = "</tool_call>"
)

// toolCallGrammar constrains everything after the trigger to a JSON
// object of the form {"name": <string>, "arguments": <object>} followed
// by the closing tag. GBNF, root rule "root".
const toolCallGrammar = `
root ::= ws "{" ws "\"name\"" ws ":" ws string ws "," ws "\"arguments\"" ws ":" ws object ws "}" ws "</tool_call>"
object ::= "{" ws ( member ( ws "," ws member )* )? ws "}"
member ::= string ws ":" ws value
value ::= object | array | string | number | "true" | "false" | "null"
array ::= "[" ws ( value ( ws "," ws value )* )? ws "]"
string ::= "\"" ( [^"\\] | "\\" ["\\/bfnrt] | "\\u" [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] )* "\""
number ::= "-"? [0-9]+ ( "." [0-9]+ )? ( [eE] [+-]? [0-9]+ )?
ws ::= [ \t\n]*
`

// ApplyTemplate renders the working conversation (plus the serialized
// tool schemas, when any) into the prompt the decode loop consumes,
// together with the grammar and its trigger conditions. The grammar is
// lazy: plain answers stream unconstrained, and the constraint switches
// on at the first tool-call opening tag.
func ApplyTemplate(render ChatTemplater, messages []ChatMessage, tools ToolSpec) (TemplateResult, error) {
	msgs := messages
	if len(tools) > 0 {
		msgs = withToolInstructions(messages, tools)
	}

	roles := make([]string, len(msgs))
	contents := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = string(m.Role)
		contents[i] = flattenMessage(m)
	}

	prompt, err := render.ApplyChatTemplate("", roles, contents, true)
	if err != nil {
		return TemplateResult{}, fmt.Errorf("apply chat template: %w", err)
	}

	result := TemplateResult{Prompt: prompt}
	if len(tools) > 0 {
		result.Grammar = toolCallGrammar
		result.GrammarIsLazy = true
		result.GrammarTriggerWords = []string{toolCallOpenTag}
		result.AdditionalStops = []string{toolCallCloseTag}
		result.ParseToolCalls = true
	}
	return result, nil
}

// ChatTemplater is the slice of the native model handle the template
// step needs, split out so it can be faked in tests.
type ChatTemplater interface {
	ApplyChatTemplate(tmpl string, roles, contents []string, addAssistant bool) (string, error)
}

// withToolInstructions prepends the tool schemas to the system message
// so the model knows what it may call and in which framing.
func withToolInstructions(messages []ChatMessage, tools ToolSpec) []ChatMessage {
	instructions := fmt.Sprintf(
		"You may call tools. The available tools are described by these JSON schemas:\n%s\n"+
			"To call a tool, reply with %s{\"name\": \"<tool>\", \"arguments\": {...}}%s and nothing after it.",
		string(tools), toolCallOpenTag, toolCallCloseTag)

	out := make([]ChatMessage, 0, len(messages)+1)
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		merged := messages[0]
		merged.Content = merged.Content + "\n\n" + instructions
		out = append(out, merged)
		out = append(out, messages[1:]...)
		return out
	}
	out = append(out, ChatMessage{Role: RoleSystem, Content: instructions})
	out = append(out, messages...)
	return out
}

// flattenMessage renders a message for the template: tool results carry
// their tool name, assistant turns re-serialize any calls they made so
// the model sees its own history.
func flattenMessage(m ChatMessage) string {
	if m.Role == RoleTool && m.ToolName != "" {
		return fmt.Sprintf("[%s] %s", m.ToolName, m.Content)
	}
	if len(m.ToolCalls) == 0 {
		return m.Content
	}

	var b strings.Builder
	b.WriteString(m.Content)
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		fmt.Fprintf(&b, "\n%s{\"name\": %q, \"arguments\": %s}%s",
			toolCallOpenTag, tc.Name, args, toolCallCloseTag)
	}
	return b.String()
}

var toolCallPattern = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*(?:</tool_call>|\z)`)

// rawToolCall is the wire shape inside a tool-call tag.
type rawToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseOutput splits raw model output into prose content and structured
// tool calls. Arguments arriving as a JSON-encoded string of an object
// are unwrapped to the object itself, so downstream code only ever sees
// objects.
func ParseOutput(raw string) (string, []ToolCall, error) {
	matches := toolCallPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(raw), nil, nil
	}

	var calls []ToolCall
	var content strings.Builder
	prev := 0
	for i, m := range matches {
		content.WriteString(raw[prev:m[0]])
		prev = m[1]

		var rc rawToolCall
		if err := json.Unmarshal([]byte(raw[m[2]:m[3]]), &rc); err != nil {
			return "", nil, fmt.Errorf("tool call %d is not valid JSON: %w", i, err)
		}
		args, err := normalizeArguments(rc.Arguments)
		if err != nil {
			return "", nil, fmt.Errorf("tool call %d has unparseable arguments: %w", i, err)
		}
		calls = append(calls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      rc.Name,
			Arguments: args,
		})
	}
	content.WriteString(raw[prev:])

	return strings.TrimSpace(content.String()), calls, nil
}

func normalizeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}

	// Arguments arrived as a JSON-encoded string of an object.
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(asString), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
