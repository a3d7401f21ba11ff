package config

import (
	"fmt"

	"dario.cat/mergo"
)

// Options is a free-form options sub-object handed to a physics module or
// an output. Getters return the default when a key is absent and a
// ConfigurationError when it holds the wrong type.
type Options map[string]any

func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return def, invalid(key, "want number, got %T", v)
	}
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return def, invalid(key, "want integer, got %g", x)
		}
		return int(x), nil
	default:
		return def, invalid(key, "want integer, got %T", v)
	}
}

func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, invalid(key, "want bool, got %T", v)
	}
	return b, nil
}

func (o Options) String(key string, def string) (string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, invalid(key, "want string, got %T", v)
	}
	return s, nil
}

// Sub returns a nested options object, or nil when absent.
func (o Options) Sub(key string) (Options, error) {
	v, ok := o[key]
	if !ok {
		return nil, nil
	}
	switch x := v.(type) {
	case Options:
		return x, nil
	case map[string]any:
		return Options(x), nil
	default:
		return nil, invalid(key, "want mapping, got %T", v)
	}
}

// Clone copies o, descending into nested mappings.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		switch x := v.(type) {
		case Options:
			out[k] = x.Clone()
		case map[string]any:
			out[k] = map[string]any(Options(x).Clone())
		default:
			out[k] = v
		}
	}
	return out
}

// Merge returns a copy of o with patch applied on top.
func (o Options) Merge(patch Options) (Options, error) {
	out := o.Clone()
	if out == nil {
		out = Options{}
	}
	if err := mergo.Merge(&out, patch.Clone(), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merge options: %w", err)
	}
	return out, nil
}
