package history

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindFloat
	KindInt
	KindBool
	KindString
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	}
	return "none"
}

// Value is a single history cell. Rows mix numbers, timestamps and strings,
// so every cell carries its kind.
type Value struct {
	kind Kind
	num  float64
	i    int64
	s    string
	t    time.Time
}

func Float(x float64) Value { return Value{kind: KindFloat, num: x} }
func Int(x int64) Value { return Value{kind: KindInt, i: x} }
func String(x string) Value { return Value{kind: KindString, s: x} }
func Time(x time.Time) Value { return Value{kind: KindTime, t: x} }
func None() Value { return Value{} }
func Bool(x bool) Value {
	if x {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// ValueOf converts a Go scalar into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return None(), nil
	case Value:
		return x, nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Int(int64(x)), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return Time(x), nil
	case *int:
		if x == nil {
			return None(), nil
		}
		return Int(int64(*x)), nil
	case *float64:
		if x == nil {
			return None(), nil
		}
		return Float(*x), nil
	}
	return Value{}, fmt.Errorf("history: unsupported value type %T", v)
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

// Float returns the numeric reading of v. Times read as unix seconds, and
// strings and none read as NaN.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return v.num
	case KindInt, KindBool:
		return float64(v.i)
	case KindTime:
		return float64(v.t.Unix())
	}
	return math.NaN()
}

func (v Value) Int() int64 {
	switch v.kind {
	case KindInt, KindBool:
		return v.i
	case KindFloat:
		return int64(v.num)
	case KindTime:
		return v.t.Unix()
	}
	return 0
}

func (v Value) Bool() bool { return v.Int() != 0 }

func (v Value) Time() time.Time {
	if v.kind == KindTime {
		return v.t
	}
	return time.Time{}
}

// String formats v for CSV output and logs.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339)
	}
	return ""
}

// Interface returns v as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.num
	case KindInt:
		return v.i
	case KindBool:
		return v.i != 0
	case KindString:
		return v.s
	case KindTime:
		return v.t
	}
	return nil
}
