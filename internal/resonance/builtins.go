package resonance

import (
	"fmt"
	"math"
	"sort"

	"morphogen/internal/fold"
	"morphogen/internal/model"
)

// ExternalPrefix marks a unary implementation owned by the host, e.g.
// "external:subscribe". The registry stores it but cannot execute it.
const ExternalPrefix = "external:"

var unaryBuiltins = map[string]func([]float64) []float64{
	"identity": func(xs []float64) []float64 {
		return append([]float64(nil), xs...)
	},
	"negate": func(xs []float64) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = -x
		}
		return out
	},
	"abs": func(xs []float64) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = math.Abs(x)
		}
		return out
	},
	"sort": func(xs []float64) []float64 {
		out := append([]float64(nil), xs...)
		sort.Float64s(out)
		return out
	},
	"reverse": func(xs []float64) []float64 {
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[len(xs)-1-i] = x
		}
		return out
	},
	"distinct": func(xs []float64) []float64 {
		seen := make(map[float64]struct{}, len(xs))
		out := make([]float64, 0, len(xs))
		for _, x := range xs {
			if _, ok := seen[x]; ok {
				continue
			}
			seen[x] = struct{}{}
			out = append(out, x)
		}
		return out
	},
}

// UnaryBuiltins lists the executable unary function names.
func UnaryBuiltins() []string {
	names := make([]string, 0, len(unaryBuiltins))
	for name := range unaryBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs an executable implementation over input. Pipelines run
// their steps in order, resolving names through lookup.
func Execute(impl model.Implementation, input []float64, lookup func(string) (model.Morphism, bool)) (model.Value, error) {
	switch impl.Kind {
	case model.ImplUnary:
		fn, ok := unaryBuiltins[impl.Func]
		if !ok {
			return model.Value{}, fmt.Errorf("%w: %q is not executable", ErrNotExecutable, impl.Func)
		}
		return model.List(fn(input)...), nil
	case model.ImplFold:
		if impl.Algebra == nil {
			return model.Value{}, fmt.Errorf("%w: fold without algebra", ErrInvalidMorphism)
		}
		return fold.Eval(*impl.Algebra, input)
	case model.ImplPipeline:
		if lookup == nil {
			return model.Value{}, fmt.Errorf("%w: pipeline needs a catalog", ErrNotExecutable)
		}
		current := model.List(input...)
		for i, step := range impl.Steps {
			if current.Kind != model.KindList {
				return model.Value{}, fmt.Errorf("%w: step %d (%s) receives a scalar", ErrNotExecutable, i, step)
			}
			m, ok := lookup(step)
			if !ok {
				return model.Value{}, fmt.Errorf("%w: unknown pipeline step %q", ErrNotExecutable, step)
			}
			if m.Implementation.Kind == model.ImplPipeline {
				return model.Value{}, fmt.Errorf("%w: nested pipeline %q", ErrNotExecutable, step)
			}
			next, err := Execute(m.Implementation, current.List, nil)
			if err != nil {
				return model.Value{}, fmt.Errorf("step %d (%s): %w", i, step, err)
			}
			current = next
		}
		return current, nil
	default:
		return model.Value{}, fmt.Errorf("%w: implementation kind %q", ErrInvalidMorphism, impl.Kind)
	}
}

func handwritten(name, signature, description string, impl model.Implementation) model.Morphism {
	return model.Morphism{
		VersionedRecord: model.CurrentVersion(),
		Name:            name,
		Version:         1,
		Signature:       signature,
		Description:     description,
		Implementation:  impl,
		Properties:      model.UnknownProperties(),
		Provenance:      model.Provenance{Origin: model.OriginHandwritten},
	}
}

// StarterCatalog is a small set of hand-written morphisms that
// DefaultVocabulary knows how to reach.
func StarterCatalog() []model.Morphism {
	mean := model.Algebra{
		VersionedRecord: model.CurrentVersion(),
		ID:              "average",
		Fields:          []model.Accumulator{model.Primitive(model.AccSum), model.Primitive(model.AccCount)},
		Finalize:        model.Finalize{Op: model.FinDiv, Args: []int{0, 1}},
	}
	median := model.Algebra{
		VersionedRecord: mean.VersionedRecord,
		ID:              "median",
		Fields:          []model.Accumulator{model.Primitive(model.AccListAppend)},
		Finalize:        model.Finalize{Op: model.FinMedian, Args: []int{0}},
	}
	return []model.Morphism{
		handwritten("subscribe", "Stream<Event> → [Event]", "track a stream of events as they arrive", model.UnaryImpl(ExternalPrefix+"subscribe")),
		handwritten("groupByTime", "[Event] → Duration → [[Event]]", "group events into time windows", model.UnaryImpl(ExternalPrefix+"groupByTime")),
		handwritten("map", "(a → b) → [a] → [b]", "transform every element", model.UnaryImpl(ExternalPrefix+"map")),
		handwritten("filter", "(a → Bool) → [a] → [a]", "keep elements matching a predicate", model.UnaryImpl(ExternalPrefix+"filter")),
		handwritten("fold", "(b → a → b) → b → [a] → b", "reduce elements into an accumulator", model.UnaryImpl(ExternalPrefix+"fold")),
		handwritten("analyzeSentimentDelta", "[Event] → [Delta]", "measure emotional shifts between events", model.UnaryImpl(ExternalPrefix+"analyzeSentimentDelta")),
		handwritten("average", "[Number] → Number", "arithmetic mean of numbers", model.FoldImpl(mean)),
		handwritten("distinct", "[a] → [a]", "remove duplicate elements", model.UnaryImpl("distinct")),
		handwritten("median", "[Number] → Number", "middle value of sorted numbers", model.FoldImpl(median)),
	}
}
