package model

import (
	"fmt"
	"strings"
)

// Accumulator operations available to fold algebras.
const (
	AccSum        = "sum"
	AccProduct    = "product"
	AccMax        = "max"
	AccMin        = "min"
	AccCount      = "count"
	AccSetInsert  = "set_insert"
	AccListAppend = "list_append"
)

// Finalize operations. Unary ones read Args[0]; binary ones read Args[0]
// and Args[1].
const (
	FinIdentity = "identity"
	FinNegate   = "negate"
	FinSize     = "size"
	FinSorted   = "sorted"
	FinMedian   = "median"
	FinDiv      = "div"
	FinSub      = "sub"
	FinAdd      = "add"
	FinMul      = "mul"
)

// Accumulator is one field of a tuple accumulator. Scale multiplies each
// element before it is combined; for count it is the increment.
type Accumulator struct {
	Op    string  `json:"op"`
	Scale float64 `json:"scale"`
}

func Primitive(op string) Accumulator {
	return Accumulator{Op: op, Scale: 1}
}

// Collects reports whether the field accumulates a list rather than a number.
func (a Accumulator) Collects() bool {
	return a.Op == AccSetInsert || a.Op == AccListAppend
}

func (a Accumulator) String() string {
	if a.Scale == 1 {
		return a.Op
	}
	return fmt.Sprintf("%s*%g", a.Op, a.Scale)
}

type Finalize struct {
	Op   string `json:"op"`
	Args []int  `json:"args,omitempty"`
}

func (f Finalize) IsBinary() bool {
	switch f.Op {
	case FinDiv, FinSub, FinAdd, FinMul:
		return true
	default:
		return false
	}
}

// Algebra is the genome searched by the synthesizer: a combine step over a
// tuple accumulator plus a finalize step.
type Algebra struct {
	VersionedRecord
	ID          string        `json:"id"`
	Fields      []Accumulator `json:"fields"`
	Finalize    Finalize      `json:"finalize"`
	Captures    []string      `json:"captures,omitempty"`
	ExtraParams []string      `json:"extra_params,omitempty"`
	Impure      bool          `json:"impure,omitempty"`
}

func (a Algebra) Clone() Algebra {
	out := a
	out.Fields = append([]Accumulator(nil), a.Fields...)
	out.Finalize.Args = append([]int(nil), a.Finalize.Args...)
	out.Captures = append([]string(nil), a.Captures...)
	out.ExtraParams = append([]string(nil), a.ExtraParams...)
	return out
}

// Summary renders the algebra structure without its ID, e.g.
// "div(sum, count)".
func (a Algebra) Summary() string {
	fields := make([]string, len(a.Fields))
	for i, f := range a.Fields {
		fields[i] = f.String()
	}
	var b strings.Builder
	if len(a.Finalize.Args) == 0 {
		b.WriteString(a.Finalize.Op)
		b.WriteString("(")
		b.WriteString(strings.Join(fields, ", "))
		b.WriteString(")")
	} else {
		args := make([]string, 0, len(a.Finalize.Args))
		for _, idx := range a.Finalize.Args {
			if idx >= 0 && idx < len(fields) {
				args = append(args, fields[idx])
			} else {
				args = append(args, fmt.Sprintf("#%d", idx))
			}
		}
		b.WriteString(a.Finalize.Op)
		b.WriteString("(")
		b.WriteString(strings.Join(args, ", "))
		b.WriteString(")")
	}
	if len(a.Captures) > 0 {
		b.WriteString(" captures[")
		b.WriteString(strings.Join(a.Captures, ","))
		b.WriteString("]")
	}
	if len(a.ExtraParams) > 0 {
		b.WriteString(" params[")
		b.WriteString(strings.Join(a.ExtraParams, ","))
		b.WriteString("]")
	}
	if a.Impure {
		b.WriteString(" impure")
	}
	return b.String()
}
