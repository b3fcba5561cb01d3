package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("tool.code_interpreter", newCodeInterpreter)
}

// codeInterpreterBlock runs a short JavaScript snippet in an isolated goja
// VM, grounded on the engine's SetupGojaVM helper set, of which only
// jsonParse/jsonStringify/btoa/atob are carried over (no HTTP helpers and
// no toString). Each invocation gets a fresh VM: goja runtimes
// are not safe for concurrent reuse, and workflow code never needs to
// retain state across calls.
type codeInterpreterBlock struct {
	code    string
	timeout time.Duration
}

func newCodeInterpreter(settings map[string]any) (blocks.Block, error) {
	code := blocks.GetString(settings, "code", "")
	if code == "" {
		return nil, blocks.ConfigError("tool.code_interpreter: %q setting is required", "code")
	}
	timeoutSec := blocks.GetInt(settings, "timeout_seconds", 5)
	return &codeInterpreterBlock{code: code, timeout: time.Duration(timeoutSec) * time.Second}, nil
}

func (b *codeInterpreterBlock) Kind() blocks.Kind     { return blocks.KindTool }
func (b *codeInterpreterBlock) ToolCompatible() bool   { return true }
func (b *codeInterpreterBlock) Extras() map[string]any { return map[string]any{"toolCompatible": true} }

func (b *codeInterpreterBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"code"},
		"properties": map[string]any{
			"code":            map[string]any{"type": "string", "minLength": 1},
			"timeout_seconds": map[string]any{"type": "integer", "minimum": 1},
		},
	}
}

func (b *codeInterpreterBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	vm := goja.New()
	if err := registerHelpers(vm); err != nil {
		return blocks.Output{}, blocks.NewError(blocks.CategoryInternalError, err)
	}

	flat := template.FlattenUpstream(in.Upstream)
	for k, v := range flat {
		if err := vm.Set(k, v); err != nil {
			return blocks.Output{}, blocks.ConfigError("tool.code_interpreter: set %q: %v", k, err)
		}
	}
	if err := vm.Set("input", in.Settings); err != nil {
		return blocks.Output{}, blocks.NewError(blocks.CategoryInternalError, err)
	}

	done := make(chan struct{})
	var (
		value goja.Value
		runErr error
	)

	go func() {
		defer close(done)
		value, runErr = vm.RunString(b.code)
	}()

	select {
	case <-done:
	case <-time.After(b.timeout):
		vm.Interrupt("timeout")
		<-done
		return blocks.Output{}, blocks.TimeoutError(fmt.Errorf("tool.code_interpreter: exceeded %s", b.timeout))
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		<-done
		return blocks.Output{}, blocks.TimeoutError(ctx.Err())
	}

	if runErr != nil {
		return blocks.Output{}, blocks.ConfigError("tool.code_interpreter: %v", runErr)
	}

	return blocks.Output{Data: map[string]any{"result": value.Export()}}, nil
}

// registerHelpers installs the small JS standard-library surface workflow
// scripts rely on: string/JSON conversion and base64 helpers. HTTP access
// is intentionally not exposed here — a script that needs to call out does
// so via tool.http_request instead, keeping the interpreter's blast radius
// to pure computation.
func registerHelpers(vm *goja.Runtime) error {
	if err := vm.Set("jsonParse", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		var raw []byte
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			panic(vm.NewTypeError("jsonParse: expected string or bytes"))
		}
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			panic(vm.NewTypeError("jsonParse: " + err.Error()))
		}
		return vm.ToValue(parsed)
	}); err != nil {
		return err
	}

	if err := vm.Set("jsonStringify", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		data, err := json.Marshal(call.Arguments[0].Export())
		if err != nil {
			panic(vm.NewTypeError("jsonStringify: " + err.Error()))
		}
		return vm.ToValue(string(data))
	}); err != nil {
		return err
	}

	if err := vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString([]byte(call.Arguments[0].String())))
	}); err != nil {
		return err
	}

	if err := vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		decoded, err := base64.StdEncoding.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(vm.NewTypeError("atob: " + err.Error()))
		}
		return vm.ToValue(string(decoded))
	}); err != nil {
		return err
	}

	return nil
}
