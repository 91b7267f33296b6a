package resonance

import (
	"math"
	"math/rand"

	"morphogen/internal/model"
)

const defaultVerificationTrials = 32

// VerifyProperties checks semantic properties of an executable
// implementation against random inputs. Properties that cannot be decided
// for the implementation's shape stay Unknown; external functions and
// pipelines are never executed.
func VerifyProperties(impl model.Implementation, rng *rand.Rand, trials int) model.Properties {
	props := model.UnknownProperties()
	if rng == nil {
		return props
	}
	if trials <= 0 {
		trials = defaultVerificationTrials
	}

	switch impl.Kind {
	case model.ImplUnary:
		fn, ok := unaryBuiltins[impl.Func]
		if !ok {
			return props
		}
		idempotent := true
		for i := 0; i < trials; i++ {
			x := randomInput(rng)
			once := fn(x)
			if !model.List(fn(once)...).Equal(model.List(once...)) {
				idempotent = false
				break
			}
		}
		props.Idempotent = model.TristateOf(idempotent)
	case model.ImplFold:
		if impl.Algebra == nil {
			return props
		}
		a := *impl.Algebra
		fold := func(xs []float64) (model.Value, error) {
			return Execute(impl, xs, nil)
		}
		props.Commutative = checkRelation(rng, trials, func(x []float64) ([]float64, []float64) {
			shuffled := append([]float64(nil), x...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
			return x, shuffled
		}, fold)
		props.Idempotent = checkRelation(rng, trials, func(x []float64) ([]float64, []float64) {
			doubled := make([]float64, 0, 2*len(x))
			for _, v := range x {
				doubled = append(doubled, v, v)
			}
			return x, doubled
		}, fold)
		props.HasIdentity = hasIdentity(a, rng, trials, fold)
		props.Associative = associative(a, rng, trials, fold)
	}
	return props
}

func randomInput(rng *rand.Rand) []float64 {
	n := 1 + rng.Intn(6)
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(rng.Intn(11) - 5)
	}
	return out
}

// checkRelation folds both sides of a generated input pair and compares.
// Trials where both sides fail are skipped; a one-sided failure disproves
// the property.
func checkRelation(rng *rand.Rand, trials int, gen func([]float64) ([]float64, []float64), fold func([]float64) (model.Value, error)) model.Tristate {
	decided := 0
	for i := 0; i < trials; i++ {
		left, right := gen(randomInput(rng))
		lv, lerr := fold(left)
		rv, rerr := fold(right)
		switch {
		case lerr != nil && rerr != nil:
			continue
		case lerr != nil || rerr != nil:
			return model.False
		case !lv.Equal(rv):
			return model.False
		}
		decided++
	}
	if decided == 0 {
		return model.Unknown
	}
	return model.True
}

// hasIdentity is decided for single-field folds only.
func hasIdentity(a model.Algebra, rng *rand.Rand, trials int, fold func([]float64) (model.Value, error)) model.Tristate {
	if len(a.Fields) != 1 {
		return model.Unknown
	}
	field := a.Fields[0]
	var neutral float64
	switch field.Op {
	case model.AccMax, model.AccMin:
		// The neutral elements are the infinities, which no finite input holds.
		return model.True
	case model.AccCount, model.AccSetInsert, model.AccListAppend:
		return model.False
	case model.AccSum:
		neutral = 0
	case model.AccProduct:
		if field.Scale == 0 {
			return model.False
		}
		neutral = 1 / field.Scale
	default:
		return model.Unknown
	}
	if math.IsInf(neutral, 0) || math.IsNaN(neutral) {
		return model.False
	}
	return checkRelation(rng, trials, func(x []float64) ([]float64, []float64) {
		return x, append(append([]float64(nil), x...), neutral)
	}, fold)
}

// associative is decided for single numeric fields with an identity
// finalize: folding a++b must equal folding the two partial results.
func associative(a model.Algebra, rng *rand.Rand, trials int, fold func([]float64) (model.Value, error)) model.Tristate {
	if len(a.Fields) != 1 || a.Fields[0].Collects() {
		return model.Unknown
	}
	if a.Finalize.Op != "" && a.Finalize.Op != model.FinIdentity {
		return model.Unknown
	}
	decided := 0
	for i := 0; i < trials; i++ {
		left, right := randomInput(rng), randomInput(rng)
		whole, err := fold(append(append([]float64(nil), left...), right...))
		if err != nil {
			continue
		}
		lv, lerr := fold(left)
		rv, rerr := fold(right)
		if lerr != nil || rerr != nil {
			continue
		}
		combined, err := fold([]float64{lv.Num, rv.Num})
		if err != nil || !combined.Equal(whole) {
			return model.False
		}
		decided++
	}
	if decided == 0 {
		return model.Unknown
	}
	return model.True
}

// mergeProperties fills only the Unknown fields of known.
func mergeProperties(known, verified model.Properties) model.Properties {
	fill := func(current, candidate model.Tristate) model.Tristate {
		if current.Known() {
			return current
		}
		if candidate.Known() {
			return candidate
		}
		return model.Unknown
	}
	return model.Properties{
		Associative: fill(known.Associative, verified.Associative),
		Commutative: fill(known.Commutative, verified.Commutative),
		HasIdentity: fill(known.HasIdentity, verified.HasIdentity),
		Idempotent:  fill(known.Idempotent, verified.Idempotent),
	}
}
