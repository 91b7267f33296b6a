package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueEqualUsesTolerance(t *testing.T) {
	if !Scalar(0.1 + 0.2).Equal(Scalar(0.3)) {
		t.Fatal("expected scalars within tolerance to be equal")
	}
	if Scalar(1).Equal(List(1)) {
		t.Fatal("scalar and list must not compare equal")
	}
	if List(1, 2).Equal(List(1, 2, 3)) {
		t.Fatal("lists of different length must differ")
	}
	if !List(1, 2).Equal(List(1, 2+1e-12)) {
		t.Fatal("expected lists within tolerance to be equal")
	}
}

func TestValueFinite(t *testing.T) {
	if Scalar(math.NaN()).Finite() || List(1, math.Inf(1)).Finite() {
		t.Fatal("expected non-finite values to be reported")
	}
	if !List().Finite() || !Scalar(-2).Finite() {
		t.Fatal("expected finite values")
	}
	if (Value{}).Finite() {
		t.Fatal("zero value has no kind and is not finite")
	}
}

func TestValueJSONShapes(t *testing.T) {
	data, err := json.Marshal([]Value{Scalar(2.5), List(1, 2), List()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[2.5,[1,2],[]]` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var decoded []Value
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0].Kind != KindScalar || decoded[1].Kind != KindList || decoded[2].Kind != KindList {
		t.Fatalf("unexpected kinds: %+v", decoded)
	}

	var bad Value
	if err := json.Unmarshal([]byte(`"three"`), &bad); err == nil {
		t.Fatal("expected error decoding a string value")
	}
	if _, err := json.Marshal(Value{}); err == nil {
		t.Fatal("expected error encoding a value without kind")
	}
}

func TestAlgebraSummary(t *testing.T) {
	mean := Algebra{
		ID:       "a1",
		Fields:   []Accumulator{Primitive(AccSum), {Op: AccCount, Scale: 2}},
		Finalize: Finalize{Op: FinDiv, Args: []int{0, 1}},
	}
	if got := mean.Summary(); got != "div(sum, count*2)" {
		t.Fatalf("unexpected summary %q", got)
	}

	mean.Finalize.Args = []int{0, 5}
	mean.Captures = []string{"threshold"}
	mean.Impure = true
	if got := mean.Summary(); got != "div(sum, #5) captures[threshold] impure" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestMorphismCloneIsDeep(t *testing.T) {
	algebra := Algebra{Fields: []Accumulator{Primitive(AccSum)}, Finalize: Finalize{Op: FinIdentity, Args: []int{0}}}
	m := Morphism{
		Name:           "total",
		Keywords:       []string{"sum"},
		Implementation: FoldImpl(algebra),
		Provenance:     Provenance{Parents: []string{"seed"}},
	}
	clone := m.Clone()
	clone.Keywords[0] = "changed"
	clone.Provenance.Parents[0] = "changed"
	clone.Implementation.Algebra.Fields[0].Op = AccMax

	if m.Keywords[0] != "sum" || m.Provenance.Parents[0] != "seed" {
		t.Fatalf("clone aliases slices: %+v", m)
	}
	if m.Implementation.Algebra.Fields[0].Op != AccSum {
		t.Fatal("clone aliases the algebra")
	}
}

func TestMorphismNextVersion(t *testing.T) {
	m := Morphism{
		Name:       "average",
		Version:    1,
		Properties: Properties{Associative: False, Commutative: True, HasIdentity: False, Idempotent: True},
		Provenance: Provenance{Origin: OriginHandwritten, Generation: 3},
	}
	next := m.NextVersion("average_v2")

	if next.Version != 2 || next.Name != "average_v2" {
		t.Fatalf("unexpected next version: %+v", next)
	}
	if len(next.Provenance.Parents) != 1 || next.Provenance.Parents[0] != "average" {
		t.Fatalf("expected parent link, got %v", next.Provenance.Parents)
	}
	if next.Provenance.Generation != 4 {
		t.Fatalf("expected generation 4, got %d", next.Provenance.Generation)
	}
	if next.Properties != UnknownProperties() || next.Properties.Verified() {
		t.Fatalf("properties must be re-verified: %+v", next.Properties)
	}
	if m.Version != 1 || !m.Properties.Verified() {
		t.Fatal("receiver was modified")
	}
}

func TestTristate(t *testing.T) {
	if TristateOf(true) != True || TristateOf(false) != False {
		t.Fatal("unexpected tristate conversion")
	}
	if Unknown.Known() || !False.Known() {
		t.Fatal("unexpected Known result")
	}
}
