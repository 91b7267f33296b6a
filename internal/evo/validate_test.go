package evo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"morphogen/internal/model"
)

func TestValidateTestCasesRejectsEmptySet(t *testing.T) {
	err := ValidateTestCases(nil)
	require.ErrorIs(t, err, ErrMalformedTestCases)
}

func TestValidateTestCasesReportsEveryOffendingIndex(t *testing.T) {
	cases := []model.TestCase{
		{Input: []float64{1, 2}, Expected: model.Scalar(3)},
		{Input: []float64{math.NaN()}, Expected: model.Scalar(1)},
		{Input: []float64{1}, Expected: model.List(1)},
		{Input: []float64{1}, Expected: model.Scalar(math.Inf(1))},
		{Input: []float64{2}},
	}

	err := ValidateTestCases(cases)
	require.ErrorIs(t, err, ErrMalformedTestCases)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []int{1, 2, 3, 4}, verr.Indices)
	require.Len(t, verr.Reasons, 4)
}

func TestValidateTestCasesAcceptsConsistentCases(t *testing.T) {
	require.NoError(t, ValidateTestCases(meanCases()))
	require.NoError(t, ValidateTestCases(dedupeCases()))
}
