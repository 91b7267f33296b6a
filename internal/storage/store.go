package storage

import (
	"context"

	"morphogen/internal/model"
)

// Store persists the morphism catalog, its usage aggregates and the
// artifacts of synthesis runs. Getters report absence through the boolean
// rather than an error.
type Store interface {
	Init(ctx context.Context) error

	SaveMorphism(ctx context.Context, morphism model.Morphism) error
	GetMorphism(ctx context.Context, name string) (model.Morphism, bool, error)
	ListMorphisms(ctx context.Context) ([]model.Morphism, error)
	DeleteMorphism(ctx context.Context, name string) error

	SaveRegistryCounts(ctx context.Context, counts model.RegistryCounts) error
	GetRegistryCounts(ctx context.Context) (model.RegistryCounts, bool, error)

	SaveSynthesisRun(ctx context.Context, run model.SynthesisRun) error
	GetSynthesisRun(ctx context.Context, runID string) (model.SynthesisRun, bool, error)
	ListSynthesisRuns(ctx context.Context) ([]model.SynthesisRun, error)

	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
