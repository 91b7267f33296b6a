package evo

import (
	"testing"

	"morphogen/internal/model"
)

func TestComputeAlgebraSignatureDeterministic(t *testing.T) {
	a := meanAlgebra("a")
	s1 := ComputeAlgebraSignature(a)
	s2 := ComputeAlgebraSignature(a)
	if s1.Fingerprint == "" {
		t.Fatal("expected non-empty fingerprint")
	}
	if s1.Fingerprint != s2.Fingerprint {
		t.Fatalf("expected deterministic fingerprint: %s != %s", s1.Fingerprint, s2.Fingerprint)
	}
	if s1.Summary != "div(sum, count)" {
		t.Fatalf("unexpected summary: %s", s1.Summary)
	}
}

func TestComputeAlgebraSignatureIgnoresID(t *testing.T) {
	if ComputeAlgebraSignature(meanAlgebra("a")).Fingerprint != ComputeAlgebraSignature(meanAlgebra("b")).Fingerprint {
		t.Fatal("expected IDs not to affect the fingerprint")
	}
}

func TestComputeAlgebraSignatureChangesWithStructure(t *testing.T) {
	base := ComputeAlgebraSignature(meanAlgebra("a")).Fingerprint

	scaled := meanAlgebra("a")
	scaled.Fields[0].Scale = 2
	if ComputeAlgebraSignature(scaled).Fingerprint == base {
		t.Fatal("expected scale to change the fingerprint")
	}

	swapped := meanAlgebra("a")
	swapped.Finalize = model.Finalize{Op: model.FinSub, Args: []int{0, 1}}
	if ComputeAlgebraSignature(swapped).Fingerprint == base {
		t.Fatal("expected finalize to change the fingerprint")
	}

	captured := meanAlgebra("a")
	captured.Captures = []string{"free0"}
	if ComputeAlgebraSignature(captured).Fingerprint == base {
		t.Fatal("expected captures to change the fingerprint")
	}
}
