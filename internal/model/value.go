package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

type ValueKind string

const (
	KindScalar ValueKind = "scalar"
	KindList   ValueKind = "list"
)

// Value is either a number or a list of numbers. It encodes to JSON as a
// bare number or array.
type Value struct {
	Kind ValueKind
	Num  float64
	List []float64
}

func Scalar(v float64) Value {
	return Value{Kind: KindScalar, Num: v}
}

func List(vs ...float64) Value {
	return Value{Kind: KindList, List: append([]float64{}, vs...)}
}

const valueTolerance = 1e-9

// Equal compares two values; numbers match within a small absolute tolerance.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindScalar:
		return numbersEqual(v.Num, other.Num)
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !numbersEqual(v.List[i], other.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Finite reports whether the value holds no NaN or infinities.
func (v Value) Finite() bool {
	switch v.Kind {
	case KindScalar:
		return !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0)
	case KindList:
		for _, x := range v.List {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return fmt.Sprintf("%g", v.Num)
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "<invalid>"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindScalar:
		return json.Marshal(v.Num)
	case KindList:
		list := v.List
		if list == nil {
			list = []float64{}
		}
		return json.Marshal(list)
	default:
		return nil, fmt.Errorf("cannot encode value of kind %q", v.Kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []float64
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*v = List(list...)
		return nil
	}
	var num float64
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return fmt.Errorf("value must be a number or an array of numbers: %w", err)
	}
	*v = Scalar(num)
	return nil
}

func numbersEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= valueTolerance
}
