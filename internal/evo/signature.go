package evo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"morphogen/internal/model"
)

type AlgebraSignature struct {
	Fingerprint string `json:"fingerprint"`
	Summary     string `json:"summary"`
	Complexity  int    `json:"complexity"`
}

// ComputeAlgebraSignature fingerprints the structure of an algebra. Two
// algebras with equal fingerprints compute the same function; the ID is
// ignored.
func ComputeAlgebraSignature(a model.Algebra) AlgebraSignature {
	parts := make([]string, 0, len(a.Fields)+4)
	for i, f := range a.Fields {
		parts = append(parts, fmt.Sprintf("f%d=%s:%g", i, f.Op, f.Scale))
	}
	args := make([]string, len(a.Finalize.Args))
	for i, idx := range a.Finalize.Args {
		args[i] = fmt.Sprintf("%d", idx)
	}
	parts = append(parts, fmt.Sprintf("fin=%s(%s)", a.Finalize.Op, strings.Join(args, ",")))

	captures := append([]string(nil), a.Captures...)
	sort.Strings(captures)
	params := append([]string(nil), a.ExtraParams...)
	sort.Strings(params)
	parts = append(parts,
		"cap="+strings.Join(captures, ","),
		"par="+strings.Join(params, ","),
		fmt.Sprintf("impure=%t", a.Impure),
	)

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return AlgebraSignature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     a.Summary(),
		Complexity:  MeasureComplexity(a),
	}
}
