// Package inputs implements the named input bag passed to every evaluation
// call of a physics module.
//
// A Bag maps string keys to either a scalar or a field reference. Field
// values are never copied: the caller must keep the referenced buffer
// alive for as long as the bag is used.
package inputs

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownInput indicates a lookup of a key that was never set.
	ErrUnknownInput = errors.New("inputs: unknown input")

	// ErrTypeMismatch indicates a scalar was requested for a field key or
	// the other way around.
	ErrTypeMismatch = errors.New("inputs: type mismatch")
)

// State is the key every module recognizes for the primal field.
const State = "state"

// Time is the key time-dependent drivers use for the current time.
const Time = "time"

type Kind int

const (
	KindScalar Kind = iota
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindField:
		return "field"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Input is a single bag value.
type Input struct {
	kind   Kind
	scalar float64
	field  []float64
}

func Scalar(v float64) Input {
	return Input{kind: KindScalar, scalar: v}
}

func Field(f []float64) Input {
	return Input{kind: KindField, field: f}
}

func (in Input) Kind() Kind { return in.kind }

// Size is 1 for scalars and the field length otherwise.
func (in Input) Size() int {
	if in.kind == KindScalar {
		return 1
	}
	return len(in.field)
}

// InputError carries the key involved in a failed lookup.
type InputError struct {
	Key     string
	Want    Kind
	Got     Kind
	Wrapped error
}

func (e *InputError) Error() string {
	if errors.Is(e.Wrapped, ErrTypeMismatch) {
		return fmt.Sprintf("%v: %q is a %s, want %s", e.Wrapped, e.Key, e.Got, e.Want)
	}
	return fmt.Sprintf("%v: %q", e.Wrapped, e.Key)
}

func (e *InputError) Unwrap() error {
	return e.Wrapped
}

type Bag struct {
	values map[string]Input
}

func New() *Bag {
	return &Bag{values: make(map[string]Input)}
}

// Of builds a bag from key/value pairs.
func Of(values map[string]Input) *Bag {
	b := New()
	for k, v := range values {
		b.values[k] = v
	}
	return b
}

// Set stores v under key, replacing any previous value.
func (b *Bag) Set(key string, v Input) *Bag {
	b.values[key] = v
	return b
}

func (b *Bag) SetScalar(key string, v float64) *Bag {
	return b.Set(key, Scalar(v))
}

func (b *Bag) SetField(key string, f []float64) *Bag {
	return b.Set(key, Field(f))
}

func (b *Bag) Get(key string) (Input, error) {
	v, ok := b.values[key]
	if !ok {
		return Input{}, &InputError{Key: key, Wrapped: ErrUnknownInput}
	}
	return v, nil
}

func (b *Bag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

func (b *Bag) Delete(key string) {
	delete(b.values, key)
}

func (b *Bag) Scalar(key string) (float64, error) {
	v, err := b.Get(key)
	if err != nil {
		return 0, err
	}
	if v.kind != KindScalar {
		return 0, &InputError{Key: key, Want: KindScalar, Got: v.kind, Wrapped: ErrTypeMismatch}
	}
	return v.scalar, nil
}

func (b *Bag) Field(key string) ([]float64, error) {
	v, err := b.Get(key)
	if err != nil {
		return nil, err
	}
	if v.kind != KindField {
		return nil, &InputError{Key: key, Want: KindField, Got: v.kind, Wrapped: ErrTypeMismatch}
	}
	return v.field, nil
}

// Keys returns the keys in sorted order.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *Bag) Len() int {
	return len(b.values)
}

// Clone copies the mapping. Field references are shared, not copied.
func (b *Bag) Clone() *Bag {
	return Of(b.values)
}

// ScalarInto copies the scalar under key into dst when the key is present.
// A missing key is not an error.
func (b *Bag) ScalarInto(key string, dst *float64) (bool, error) {
	if !b.Has(key) {
		return false, nil
	}
	v, err := b.Scalar(key)
	if err != nil {
		return false, err
	}
	*dst = v
	return true, nil
}

// FieldInto stores the field reference under key into dst when present.
func (b *Bag) FieldInto(key string, dst *[]float64) (bool, error) {
	if !b.Has(key) {
		return false, nil
	}
	f, err := b.Field(key)
	if err != nil {
		return false, err
	}
	*dst = f
	return true, nil
}
