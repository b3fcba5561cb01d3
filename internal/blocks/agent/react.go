// Package agent implements the ReAct (Reason+Act) agent sub-executor:
// agent.react runs its own bounded loop of "model call → optional tool
// call → observation" turns, re-entering the block registry to execute
// each tool. This is grounded almost line-for-line on agent_react.py: the
// same settings shape (system/prompt/tools/model/temperature/
// max_steps/timeout_seconds), the same literal "Action:"/"Action Input:"/
// "Observation:"/"Final Answer:" transcript protocol, and the same
// tool-dispatch-by-name contract.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/provider"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("agent.react", newReact)
}

var (
	finalAnswerRe = regexp.MustCompile(`(?is)Final Answer:\s*(.*)`)
	actionRe      = regexp.MustCompile(`(?is)Action:\s*([^\n]+)\nAction Input:\s*(.*)`)
)

// Trace is one step of the agent's reasoning, exposed in the block's
// output for observability (NodeRun.output / log entries).
type Trace struct {
	Step        int    `json:"step"`
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionInput any    `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
}

type reactBlock struct {
	system         string
	prompt         string
	tools          []blocks.ToolSpec
	providerID     string
	model          string
	temperature    float64
	maxSteps       int
	timeoutSeconds int
}

func newReact(settings map[string]any) (blocks.Block, error) {
	prompt := blocks.GetString(settings, "prompt", "")
	if prompt == "" {
		return nil, blocks.ConfigError("agent.react: %q setting is required", "prompt")
	}

	tools := parseToolSpecs(settings["tools"])

	maxSteps := blocks.GetInt(settings, "max_steps", 8)
	if maxSteps < 1 {
		maxSteps = 1
	}
	if maxSteps > 32 {
		maxSteps = 32
	}

	timeout := blocks.GetInt(settings, "timeout_seconds", 60)
	if timeout < 1 {
		timeout = 1
	}

	temp := blocks.GetFloat(settings, "temperature", 1.0)

	return &reactBlock{
		system:         blocks.GetString(settings, "system", ""),
		prompt:         prompt,
		tools:          tools,
		providerID:     blocks.GetString(settings, "provider", "default"),
		model:          blocks.GetString(settings, "model", ""),
		temperature:    temp,
		maxSteps:       maxSteps,
		timeoutSeconds: timeout,
	}, nil
}

func parseToolSpecs(v any) []blocks.ToolSpec {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]blocks.ToolSpec, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, blocks.ToolSpec{
			ID:          blocks.GetString(m, "id", ""),
			Name:        blocks.GetString(m, "name", ""),
			Type:        blocks.GetString(m, "type", ""),
			Settings:    blocks.GetMap(m, "settings"),
			InputSchema: blocks.GetMap(m, "input_schema"),
		})
	}
	return out
}

func (b *reactBlock) Kind() blocks.Kind     { return blocks.KindAgent }
func (b *reactBlock) ToolCompatible() bool   { return false }
func (b *reactBlock) Extras() map[string]any {
	return map[string]any{
		"connectors": []map[string]any{
			{"name": "tools", "kind": "tool-connector", "multiple": true, "accepts": []string{"tool"}},
		},
	}
}

func (b *reactBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"prompt"},
		"properties": map[string]any{
			"system":          map[string]any{"type": "string"},
			"prompt":          map[string]any{"type": "string", "minLength": 1},
			"tools":           map[string]any{"type": "array"},
			"provider":        map[string]any{"type": "string"},
			"model":           map[string]any{"type": "string"},
			"temperature":     map[string]any{"type": "number"},
			"max_steps":       map[string]any{"type": "integer"},
			"timeout_seconds": map[string]any{"type": "integer"},
		},
	}
}

func (b *reactBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	if in.Caps.Provider == nil {
		return blocks.Output{}, blocks.DependencyError(errNoProviderLookup)
	}

	// Tools attached via graph edges augment (never replace) any tools
	// spelled out directly in settings, deduplicated by name — matching
	// the original's __derived_tools_from_edges__ behavior of adding
	// edge-derived tools alongside any declared in settings.
	tools := mergeTools(b.tools, in.DerivedTools)

	flat := template.FlattenUpstream(in.Upstream)

	system, err := template.Render(b.system, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("agent.react: render system: %v", err)
	}

	prompt, err := template.Render(b.prompt, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("agent.react: render prompt: %v", err)
	}
	if strings.TrimSpace(prompt) == "" {
		return blocks.Output{}, blocks.ConfigError("agent.react: rendered prompt is empty")
	}

	llm, defaultModel, err := in.Caps.Provider(b.providerID)
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}
	model := b.model
	if model == "" {
		model = defaultModel
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(b.timeoutSeconds)*time.Second)
	defer cancel()

	convo := []provider.Message{
		{Role: "system", Content: strings.Join([]string{system, toolInstructions(tools), reactInstructions}, "\n\n")},
		{Role: "user", Content: prompt},
	}

	var trace []Trace

	for step := 1; step <= b.maxSteps; step++ {
		if err := runCtx.Err(); err != nil {
			return blocks.Output{}, blocks.TimeoutError(err)
		}

		resp, err := llm.Chat(runCtx, model, convo, nil)
		if err != nil {
			if runCtx.Err() != nil {
				return blocks.Output{}, blocks.TimeoutError(err)
			}
			return blocks.Output{}, blocks.DependencyError(err)
		}

		if m := finalAnswerRe.FindStringSubmatch(resp.Content); m != nil {
			final := strings.TrimSpace(m[1])
			trace = append(trace, Trace{Step: step, Thought: resp.Content})
			return blocks.Output{Data: map[string]any{"data": map[string]any{"final": final, "trace": trace}}}, nil
		}

		if m := actionRe.FindStringSubmatch(resp.Content); m != nil {
			toolName := strings.TrimSpace(m[1])
			rawInput := strings.TrimSpace(m[2])

			var toolInput any
			if err := json.Unmarshal([]byte(rawInput), &toolInput); err != nil {
				toolInput = rawInput
			}

			observation := b.callTool(runCtx, in, toolName, toolInput, tools)

			trace = append(trace, Trace{
				Step:        step,
				Action:      toolName,
				ActionInput: toolInput,
				Observation: observation,
			})

			convo = append(convo, provider.Message{Role: "assistant", Content: resp.Content})
			convo = append(convo, provider.Message{Role: "user", Content: "Observation: " + observation})
			continue
		}

		trace = append(trace, Trace{Step: step, Thought: resp.Content})
		convo = append(convo, provider.Message{Role: "assistant", Content: resp.Content})
		convo = append(convo, provider.Message{Role: "user", Content: "Please provide Final Answer."})
	}

	return blocks.Output{Data: map[string]any{"data": map[string]any{
		"final": "Failed to reach a final answer within max_steps.",
		"trace": trace,
	}}}, nil
}

func (b *reactBlock) callTool(ctx context.Context, in blocks.Input, toolName string, toolInput any, tools []blocks.ToolSpec) string {
	var spec *blocks.ToolSpec
	for i := range tools {
		if tools[i].Name == toolName {
			spec = &tools[i]
			break
		}
	}
	if spec == nil {
		return fmt.Sprintf("Tool %s error: no such tool attached to this agent", toolName)
	}
	if in.Caps.ToolRunner == nil {
		return fmt.Sprintf("Tool %s error: no tool runner configured", toolName)
	}

	if len(spec.InputSchema) > 0 {
		if verr := validateToolInput(spec.InputSchema, toolInput); verr != nil {
			return fmt.Sprintf("Tool %s error: invalid arguments: %v", toolName, verr)
		}
	}

	settings := make(map[string]any, len(spec.Settings)+1)
	for k, v := range spec.Settings {
		settings[k] = v
	}
	switch v := toolInput.(type) {
	case map[string]any:
		for k, val := range v {
			settings[k] = val
		}
	case string:
		// calculator-shaped single-string tools accept the raw input as
		// their "expression" field when no structured arguments were given.
		settings["expression"] = v
		settings["input"] = v
	}

	out, err := in.Caps.ToolRunner(ctx, spec.Type, blocks.Input{
		Settings: settings,
		NodeID:   fmt.Sprintf("%s::tool::%s", in.NodeID, toolName),
		Caps:     in.Caps,
	})
	if err != nil {
		return fmt.Sprintf("Tool %s error: %v", toolName, err)
	}

	data, err := json.Marshal(out.Data)
	if err != nil {
		return fmt.Sprintf("Tool %s error: marshal result: %v", toolName, err)
	}
	return string(data)
}

// validateToolInput checks the agent's parsed Action Input against the
// tool's declared JSON Schema before dispatch, so a malformed argument set
// comes back as an Observation the model can correct on its next step
// instead of reaching the block with the wrong shape.
func validateToolInput(schema map[string]any, input any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func mergeTools(declared, derived []blocks.ToolSpec) []blocks.ToolSpec {
	seen := make(map[string]struct{}, len(declared))
	out := make([]blocks.ToolSpec, 0, len(declared)+len(derived))
	for _, t := range declared {
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}
	for _, t := range derived {
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
	}
	return out
}

func toolInstructions(tools []blocks.ToolSpec) string {
	if len(tools) == 0 {
		return "You have no tools available. Answer directly with Final Answer: <answer>."
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools:\n")
	for _, t := range tools {
		b.WriteString("- " + t.Name + " (" + t.Type + ")\n")
	}
	return b.String()
}

const reactInstructions = `Use this format strictly:

Action: <tool name>
Action Input: <JSON input for the tool>

After a tool runs you will receive an Observation. When you have enough
information, respond with exactly:

Final Answer: <your answer>`
