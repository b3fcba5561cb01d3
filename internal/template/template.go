// Package template renders the "{{ expr }}" interpolation strings used in
// block settings (prompts, templates, branch conditions) against the
// upstream/trigger/settings context assembled for a node. Expressions are
// evaluated with expr-lang/expr, a safe, side-effect-free expression
// language with no file or network access — appropriate for user-authored
// workflow content.
package template

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Mode controls how a missing variable or evaluation error is handled.
type Mode int

const (
	// Strict fails the render on the first expression error. Used for
	// settings that gate control flow (branch conditions, required
	// prompts) where a silently-empty render would hide a bug.
	Strict Mode = iota
	// Permissive leaves a failing expression's literal "{{ ... }}" text in
	// place and continues, matching the original renderer's best-effort
	// fallback for exploratory prompt templates.
	Permissive
)

// Render scans s for "{{ expr }}" segments, evaluates each expr against
// data, and substitutes the string form of the result. Literal text outside
// "{{ }}" is passed through unchanged.
func Render(s string, data map[string]any, mode Mode) (string, error) {
	var out strings.Builder
	rest := s

	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			out.WriteString(rest)
			break
		}
		end += start

		out.WriteString(rest[:start])
		exprSrc := strings.TrimSpace(rest[start+2 : end])

		val, err := Eval(exprSrc, data, mode)
		if err != nil {
			if mode == Strict {
				return "", fmt.Errorf("render %q: %w", exprSrc, err)
			}
			out.WriteString(rest[start : end+2])
		} else {
			out.WriteString(stringify(val))
		}

		rest = rest[end+2:]
	}

	return out.String(), nil
}

// Eval compiles and runs a single expression against data. In Permissive
// mode a reference to a variable missing from data evaluates to nil rather
// than failing the compile; in Strict mode any undefined variable is a
// compile error, so a missing value fails the block with a ConfigError
// instead of silently rendering empty.
func Eval(exprSrc string, data map[string]any, mode Mode) (any, error) {
	opts := []expr.Option{expr.Env(data)}
	if mode == Permissive {
		opts = append(opts, expr.AllowUndefinedVariables())
	}
	program, err := expr.Compile(exprSrc, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	out, err := expr.Run(program, data)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return out, nil
}

// EvalBool evaluates exprSrc and coerces the result to a boolean the same
// way control.branch does: a bool result is used directly, anything else is
// rendered to a string and treated as truthy unless empty, "false", or "0".
func EvalBool(exprSrc string, data map[string]any, mode Mode) (bool, error) {
	val, err := Eval(exprSrc, data, mode)
	if err != nil {
		return false, err
	}
	if b, ok := val.(bool); ok {
		return b, nil
	}
	s := strings.TrimSpace(stringify(val))
	switch strings.ToLower(s) {
	case "", "false", "0":
		return false, nil
	default:
		return true, nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FlattenUpstream merges a set of upstream node outputs into a single flat
// map usable as template context. Each upstream value that is itself a
// {"data": ...} wrapper (the shape every block output carries) is unwrapped
// one level, matching the original renderer's handling of chained block
// output so templates can write "{{ node_id.field }}" instead of
// "{{ node_id.data.field }}".
func FlattenUpstream(upstream map[string]any) map[string]any {
	flat := make(map[string]any, len(upstream))
	for nodeID, v := range upstream {
		if m, ok := v.(map[string]any); ok {
			if data, ok := m["data"]; ok && len(m) == 1 {
				flat[nodeID] = data
				continue
			}
		}
		flat[nodeID] = v
	}
	return flat
}
