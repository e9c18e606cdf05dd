package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Transformer runs a Starlark script over the raw configuration document.
// The script must define transform(config) and return the modified
// configuration as a dict.
type Transformer struct {
	timeout time.Duration
}

// NewTransformer creates a transformer. A zero timeout defaults to 30s.
func NewTransformer(timeout time.Duration) *Transformer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Transformer{timeout: timeout}
}

// Apply executes the script at scriptPath with the raw configuration and
// returns the transformed document.
func (t *Transformer) Apply(ctx context.Context, scriptPath string, cfg map[string]interface{}) (map[string]interface{}, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transform script %s: %w", scriptPath, err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		result map[string]interface{}
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		result, err := t.run(scriptPath, string(script), cfg)
		ch <- outcome{result, err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("transform script timed out after %v", t.timeout)
	case out := <-ch:
		return out.result, out.err
	}
}

func (t *Transformer) run(name, script string, cfg map[string]interface{}) (map[string]interface{}, error) {
	thread := &starlark.Thread{
		Name:  "mantle-transform",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	globals, err := starlark.ExecFile(thread, name, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("transform script failed: %w", err)
	}

	fn, ok := globals["transform"]
	if !ok {
		return nil, fmt.Errorf("transform script %s does not define transform(config)", name)
	}

	input, err := toStarlark(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to convert configuration for transform: %w", err)
	}

	value, err := starlark.Call(thread, fn, starlark.Tuple{input}, nil)
	if err != nil {
		return nil, fmt.Errorf("transform(config) failed: %w", err)
	}

	result, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("failed to convert transform result: %w", err)
	}

	out, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("transform(config) must return a dict, got %T", result)
	}
	return out, nil
}

// toStarlark converts a Go value decoded from YAML/JSON to a Starlark value.
func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromStarlark converts a Starlark value back to a plain Go value.
func fromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		items := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	case starlark.Tuple:
		items := make([]interface{}, len(val))
		for i, item := range val {
			converted, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = converted
		}
		return items, nil
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
