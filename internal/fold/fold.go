// Package fold evaluates tuple-accumulator algebras over numeric input.
package fold

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"morphogen/internal/model"
)

var (
	ErrEmptyAlgebra    = errors.New("algebra has no accumulator fields")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrFinalizeArgs    = errors.New("finalize arguments do not match fields")
	ErrNonFiniteResult = errors.New("non-finite result")
)

var binaryFinalizeOps = []string{model.FinDiv, model.FinSub, model.FinAdd, model.FinMul}

type fieldState struct {
	acc  model.Accumulator
	num  float64
	list []float64
	seen map[float64]struct{}
}

func newFieldState(acc model.Accumulator) (*fieldState, error) {
	s := &fieldState{acc: acc}
	switch acc.Op {
	case model.AccSum, model.AccCount:
		s.num = 0
	case model.AccProduct:
		s.num = 1
	case model.AccMax:
		s.num = math.Inf(-1)
	case model.AccMin:
		s.num = math.Inf(1)
	case model.AccSetInsert:
		s.list = []float64{}
		s.seen = make(map[float64]struct{})
	case model.AccListAppend:
		s.list = []float64{}
	default:
		return nil, fmt.Errorf("%w: accumulator %q", ErrUnknownOp, acc.Op)
	}
	return s, nil
}

// CheckAccumulator reports whether acc names a known accumulator operation.
func CheckAccumulator(acc model.Accumulator) error {
	_, err := newFieldState(acc)
	return err
}

func (s *fieldState) combine(x float64) {
	v := s.acc.Scale * x
	switch s.acc.Op {
	case model.AccSum:
		s.num += v
	case model.AccProduct:
		s.num *= v
	case model.AccMax:
		if v > s.num {
			s.num = v
		}
	case model.AccMin:
		if v < s.num {
			s.num = v
		}
	case model.AccCount:
		s.num += s.acc.Scale
	case model.AccSetInsert:
		if _, ok := s.seen[v]; !ok {
			s.seen[v] = struct{}{}
			s.list = append(s.list, v)
		}
	case model.AccListAppend:
		s.list = append(s.list, v)
	}
}

func (s *fieldState) value() model.Value {
	if s.acc.Collects() {
		return model.List(s.list...)
	}
	return model.Scalar(s.num)
}

// Eval runs the algebra's combine step over input and applies its finalize
// step. Captures and extra parameters do not influence the computation.
func Eval(a model.Algebra, input []float64) (model.Value, error) {
	if len(a.Fields) == 0 {
		return model.Value{}, ErrEmptyAlgebra
	}
	states := make([]*fieldState, len(a.Fields))
	for i, field := range a.Fields {
		state, err := newFieldState(field)
		if err != nil {
			return model.Value{}, err
		}
		states[i] = state
	}
	for _, x := range input {
		for _, state := range states {
			state.combine(x)
		}
	}
	values := make([]model.Value, len(states))
	for i, state := range states {
		values[i] = state.value()
	}

	out, err := finalize(a.Finalize, values)
	if err != nil {
		return model.Value{}, err
	}
	if !out.Finite() {
		return model.Value{}, ErrNonFiniteResult
	}
	return out, nil
}

func finalize(fin model.Finalize, values []model.Value) (model.Value, error) {
	args := fin.Args
	if len(args) == 0 {
		args = []int{0}
	}
	arg := func(i int) (model.Value, error) {
		if i >= len(args) {
			return model.Value{}, fmt.Errorf("%w: %s needs %d arguments", ErrFinalizeArgs, fin.Op, i+1)
		}
		idx := args[i]
		if idx < 0 || idx >= len(values) {
			return model.Value{}, fmt.Errorf("%w: field index %d", ErrFinalizeArgs, idx)
		}
		return values[idx], nil
	}

	if fin.IsBinary() {
		left, err := arg(0)
		if err != nil {
			return model.Value{}, err
		}
		right, err := arg(1)
		if err != nil {
			return model.Value{}, err
		}
		if left.Kind != model.KindScalar || right.Kind != model.KindScalar {
			return model.Value{}, fmt.Errorf("%w: %s requires numeric fields", ErrFinalizeArgs, fin.Op)
		}
		switch fin.Op {
		case model.FinDiv:
			if right.Num == 0 {
				return model.Value{}, fmt.Errorf("division by zero")
			}
			return model.Scalar(left.Num / right.Num), nil
		case model.FinSub:
			return model.Scalar(left.Num - right.Num), nil
		case model.FinAdd:
			return model.Scalar(left.Num + right.Num), nil
		default:
			return model.Scalar(left.Num * right.Num), nil
		}
	}

	v, err := arg(0)
	if err != nil {
		return model.Value{}, err
	}
	switch fin.Op {
	case "", model.FinIdentity:
		return v, nil
	case model.FinNegate:
		if v.Kind != model.KindScalar {
			return model.Value{}, fmt.Errorf("%w: negate requires a numeric field", ErrFinalizeArgs)
		}
		return model.Scalar(-v.Num), nil
	case model.FinSize:
		if v.Kind != model.KindList {
			return model.Value{}, fmt.Errorf("%w: size requires a collecting field", ErrFinalizeArgs)
		}
		return model.Scalar(float64(len(v.List))), nil
	case model.FinSorted:
		if v.Kind != model.KindList {
			return model.Value{}, fmt.Errorf("%w: sorted requires a collecting field", ErrFinalizeArgs)
		}
		sorted := append([]float64(nil), v.List...)
		sort.Float64s(sorted)
		return model.List(sorted...), nil
	case model.FinMedian:
		if v.Kind != model.KindList {
			return model.Value{}, fmt.Errorf("%w: median requires a collecting field", ErrFinalizeArgs)
		}
		if len(v.List) == 0 {
			return model.Value{}, fmt.Errorf("median of empty input")
		}
		sorted := append([]float64(nil), v.List...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return model.Scalar(sorted[mid]), nil
		}
		return model.Scalar((sorted[mid-1] + sorted[mid]) / 2), nil
	default:
		return model.Value{}, fmt.Errorf("%w: finalize %q", ErrUnknownOp, fin.Op)
	}
}

// FinalizeOptions lists the finalize steps that type-check against fields,
// in a fixed order.
func FinalizeOptions(fields []model.Accumulator) []model.Finalize {
	switch {
	case len(fields) == 0:
		return nil
	case len(fields) == 1:
		if fields[0].Collects() {
			return []model.Finalize{
				{Op: model.FinIdentity, Args: []int{0}},
				{Op: model.FinSize, Args: []int{0}},
				{Op: model.FinSorted, Args: []int{0}},
				{Op: model.FinMedian, Args: []int{0}},
			}
		}
		return []model.Finalize{
			{Op: model.FinIdentity, Args: []int{0}},
			{Op: model.FinNegate, Args: []int{0}},
		}
	default:
		if !fields[0].Collects() && !fields[1].Collects() {
			out := make([]model.Finalize, 0, len(binaryFinalizeOps))
			for _, op := range binaryFinalizeOps {
				out = append(out, model.Finalize{Op: op, Args: []int{0, 1}})
			}
			return out
		}
		return []model.Finalize{
			{Op: model.FinIdentity, Args: []int{0}},
			{Op: model.FinIdentity, Args: []int{1}},
		}
	}
}

// FinalizeValid reports whether fin is one of FinalizeOptions(fields).
func FinalizeValid(fields []model.Accumulator, fin model.Finalize) bool {
	for _, option := range FinalizeOptions(fields) {
		if option.Op != fin.Op || len(option.Args) != len(fin.Args) {
			continue
		}
		match := true
		for i := range option.Args {
			if option.Args[i] != fin.Args[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
