// Package tool holds the blocks meant primarily to be attached to an agent
// node via a tool-connector edge, though several (http_request) are equally
// usable as plain executors.
package tool

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("tool.calculator", newCalculator)
}

// calculatorBlock evaluates a numeric expression through a restricted
// abstract-syntax-tree walk, grounded directly on calculator.py's
// safe_eval(): parse as an expression, reject any AST node that isn't a
// literal, a unary +/-, or a binary +/-/*//%, then evaluate the remaining
// tree by hand. Go's go/parser and go/ast give the same allow-list
// guarantee Python's ast module gives calculator.py — arbitrary code
// (function calls, identifiers, indexing) simply has no node type in the
// allow-list, so it can never reach evaluation.
//
// This is the one block in the engine built on the standard library by
// design rather than by gap: no general-purpose expression library
// offers the same "provably cannot execute arbitrary code" property a
// hand-rolled allow-listed walker does.
type calculatorBlock struct {
	expression string
}

func newCalculator(settings map[string]any) (blocks.Block, error) {
	return &calculatorBlock{expression: blocks.GetString(settings, "expression", "")}, nil
}

func (b *calculatorBlock) Kind() blocks.Kind     { return blocks.KindTool }
func (b *calculatorBlock) ToolCompatible() bool   { return true }
func (b *calculatorBlock) Extras() map[string]any { return map[string]any{"toolCompatible": true} }

func (b *calculatorBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"expression": map[string]any{"type": "string"}},
	}
}

func (b *calculatorBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	exprSrc := b.expression
	if exprSrc == "" {
		exprSrc = blocks.GetString(in.Trigger, "expression", "")
	}
	if exprSrc == "" {
		if v, ok := blocks.FirstUpstreamValue(in.Upstream); ok {
			if s, ok := v.(string); ok {
				exprSrc = s
			}
		}
	}
	if exprSrc == "" {
		return blocks.Output{}, blocks.ConfigError("tool.calculator: no expression provided")
	}

	result, err := safeEval(exprSrc)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("tool.calculator: %v", err)
	}

	return blocks.Output{Data: map[string]any{"result": result}}, nil
}

// safeEval parses exprSrc as a Go expression and evaluates it, rejecting
// any syntax beyond numeric literals and +,-,*,/,%  (unary and binary).
func safeEval(exprSrc string) (float64, error) {
	node, err := parser.ParseExpr(exprSrc)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	return evalNode(node)
}

func evalNode(n ast.Expr) (float64, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return evalNode(e.X)

	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal kind %v", e.Kind)
		}
		var f float64
		if _, err := fmt.Sscanf(e.Value, "%g", &f); err != nil {
			return 0, fmt.Errorf("parse literal %q: %w", e.Value, err)
		}
		return f, nil

	case *ast.UnaryExpr:
		v, err := evalNode(e.X)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return v, nil
		case token.SUB:
			return -v, nil
		default:
			return 0, fmt.Errorf("unsupported unary operator %v", e.Op)
		}

	case *ast.BinaryExpr:
		left, err := evalNode(e.X)
		if err != nil {
			return 0, err
		}
		right, err := evalNode(e.Y)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		case token.REM:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			li, ri := int64(left), int64(right)
			return float64(li % ri), nil
		default:
			return 0, fmt.Errorf("unsupported binary operator %v", e.Op)
		}

	default:
		return 0, fmt.Errorf("unsupported expression of type %T", n)
	}
}
