package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindConfiguration
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindConfiguration:
		return "configuration"
	default:
		return "invalid"
	}
}

// Value is a configuration value: a string, a number, a boolean or a nested
// Configuration. The zero Value is invalid.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	cfg  *Configuration
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ConfigurationValue returns a Value holding a copy of c.
func ConfigurationValue(c *Configuration) Value {
	return Value{kind: KindConfiguration, cfg: c.Clone()}
}

// ValueOf converts a plain Go value into a Value.
//
// Accepted inputs are strings, booleans, every integer and float kind,
// *Configuration, map[string]any (keys are sorted, since Go maps carry no
// order) and Value itself. Anything else, as well as NaN and infinities,
// fails with ErrConfigDecode.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		if val.kind == KindInvalid {
			return Value{}, fmt.Errorf("%w: invalid value", ErrConfigDecode)
		}
		return val.clone(), nil
	case string:
		return StringValue(val), nil
	case bool:
		return BoolValue(val), nil
	case *Configuration:
		return ConfigurationValue(val), nil
	case map[string]any:
		c, err := ConfigurationFromMap(val)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindConfiguration, cfg: c}, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrConfigDecode, err)
		}
		return numberOf(f)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NumberValue(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return numberOf(rv.Float())
	}
	return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrConfigDecode, v)
}

func numberOf(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: number %v is not finite", ErrConfigDecode, f)
	}
	return NumberValue(f), nil
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsConfiguration returns a copy of the nested configuration held by v.
func (v Value) AsConfiguration() (*Configuration, bool) {
	if v.kind != KindConfiguration {
		return nil, false
	}
	return v.cfg.Clone(), true
}

// Interface returns v as a plain Go value: string, float64, bool or
// map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindConfiguration:
		return v.cfg.Map()
	default:
		return nil
	}
}

// String formats v for display and comparison.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindConfiguration:
		data, err := v.cfg.MarshalJSON()
		if err != nil {
			return "{}"
		}
		return string(data)
	default:
		return ""
	}
}

// Equal reports whether v and o hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindConfiguration:
		return v.cfg.Equal(o.cfg)
	default:
		return true
	}
}

func (v Value) clone() Value {
	if v.kind == KindConfiguration {
		v.cfg = v.cfg.Clone()
	}
	return v
}

// MarshalJSON encodes v as the matching JSON scalar or object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindConfiguration:
		return v.cfg.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// Configuration is an ordered key/value parameter bag.
//
// Keys are unique and iterate in first-insertion order. A Configuration is
// not safe for concurrent mutation; each Module or Rule owns its own copy.
// Reads on a nil *Configuration behave as on an empty one.
type Configuration struct {
	keys   []string
	values map[string]Value
}

// NewConfiguration returns an empty configuration.
func NewConfiguration() *Configuration {
	return &Configuration{values: make(map[string]Value)}
}

// ConfigurationFromMap builds a configuration from a Go map. Keys are added
// in sorted order so the result is deterministic.
func ConfigurationFromMap(m map[string]any) (*Configuration, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := NewConfiguration()
	for _, k := range keys {
		if err := c.Set(k, m[k]); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
	}
	return c, nil
}

// Get returns the value stored under key.
func (c *Configuration) Get(key string) (Value, bool) {
	if c == nil {
		return Value{}, false
	}
	v, ok := c.values[key]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

// Has reports whether key is present.
func (c *Configuration) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.values[key]
	return ok
}

// Put stores v under key. An existing key keeps its position; a new key is
// appended. Invalid values are ignored.
func (c *Configuration) Put(key string, v Value) {
	if v.kind == KindInvalid {
		return
	}
	if c.values == nil {
		c.values = make(map[string]Value)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v.clone()
}

// Set converts v with ValueOf and stores it under key.
func (c *Configuration) Set(key string, v any) error {
	val, err := ValueOf(v)
	if err != nil {
		return err
	}
	c.Put(key, val)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (c *Configuration) Delete(key string) {
	if c == nil {
		return
	}
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Merge returns a new configuration holding c overlaid with other.
// Values from other win on collision; keys keep c's order and new keys from
// other follow in other's order.
func (c *Configuration) Merge(other *Configuration) *Configuration {
	merged := c.Clone()
	for k, v := range other.All() {
		merged.Put(k, v)
	}
	return merged
}

// All iterates over the key/value pairs in insertion order.
func (c *Configuration) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if c == nil {
			return
		}
		for _, k := range c.keys {
			if !yield(k, c.values[k].clone()) {
				return
			}
		}
	}
}

// Keys returns the keys in insertion order.
func (c *Configuration) Keys() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of keys.
func (c *Configuration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone returns a deep copy. Cloning nil yields an empty configuration.
func (c *Configuration) Clone() *Configuration {
	cpy := NewConfiguration()
	if c == nil {
		return cpy
	}
	cpy.keys = make([]string, len(c.keys))
	copy(cpy.keys, c.keys)
	for k, v := range c.values {
		cpy.values[k] = v.clone()
	}
	return cpy
}

// Equal reports whether both configurations hold the same keys, in the same
// order, with equal values.
func (c *Configuration) Equal(o *Configuration) bool {
	if c.Len() != o.Len() {
		return false
	}
	for i, k := range c.Keys() {
		if o.keys[i] != k || !c.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// Map returns the configuration as plain Go values. Order is lost.
func (c *Configuration) Map() map[string]any {
	out := make(map[string]any, c.Len())
	for k, v := range c.All() {
		out[k] = v.Interface()
	}
	return out
}

// GetString returns the string under key, or def when absent.
func (c *Configuration) GetString(key, def string) (string, error) {
	v, ok := c.Get(key)
	if !ok {
		return def, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", &DecodeError{Key: key, Want: KindString, Got: v.kind}
	}
	return s, nil
}

// GetNumber returns the number under key, or def when absent.
func (c *Configuration) GetNumber(key string, def float64) (float64, error) {
	v, ok := c.Get(key)
	if !ok {
		return def, nil
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0, &DecodeError{Key: key, Want: KindNumber, Got: v.kind}
	}
	return n, nil
}

// GetInt returns the integral number under key, or def when absent.
func (c *Configuration) GetInt(key string, def int) (int, error) {
	if !c.Has(key) {
		return def, nil
	}
	n, err := c.GetNumber(key, 0)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%w: key %q is %v, want an integer", ErrConfigDecode, key, n)
	}
	return int(n), nil
}

// GetBool returns the boolean under key, or def when absent.
func (c *Configuration) GetBool(key string, def bool) (bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return def, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, &DecodeError{Key: key, Want: KindBool, Got: v.kind}
	}
	return b, nil
}

// GetConfiguration returns a copy of the nested configuration under key, or
// nil when absent.
func (c *Configuration) GetConfiguration(key string) (*Configuration, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, nil //nolint:nilnil // absent key is not an error
	}
	nested, ok := v.AsConfiguration()
	if !ok {
		return nil, &DecodeError{Key: key, Want: KindConfiguration, Got: v.kind}
	}
	return nested, nil
}

// MarshalJSON encodes the configuration as a JSON object in key order.
func (c *Configuration) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for k, v := range c.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
// Arrays and null values are rejected with ErrConfigDecode.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigDecode, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: configuration must be a JSON object", ErrConfigDecode)
	}

	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// decodeObject reads object members up to and including the closing brace.
// The opening brace must already be consumed.
func decodeObject(dec *json.Decoder) (*Configuration, error) {
	c := NewConfiguration()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigDecode, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrConfigDecode, tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		c.Put(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigDecode, err)
	}
	return c, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrConfigDecode, err)
	}
	switch t := tok.(type) {
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return ValueOf(t)
	case json.Delim:
		if t == '{' {
			nested, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{kind: KindConfiguration, cfg: nested}, nil
		}
		return Value{}, fmt.Errorf("%w: arrays are not supported", ErrConfigDecode)
	default:
		return Value{}, fmt.Errorf("%w: null is not a value", ErrConfigDecode)
	}
}
