package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"morphogen/internal/model"
)

var (
	ErrNotInitialized = errors.New("store is not initialized")
	ErrMissingKey     = errors.New("record key is required")
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	morphisms   map[string]model.Morphism
	counts      *model.RegistryCounts
	runs        map[string]model.SynthesisRun
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
	lineage     map[string][]model.LineageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.morphisms = make(map[string]model.Morphism)
	s.runs = make(map[string]model.SynthesisRun)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.lineage = make(map[string][]model.LineageRecord)
	return nil
}

func (s *MemoryStore) SaveMorphism(_ context.Context, morphism model.Morphism) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if morphism.Name == "" {
		return ErrMissingKey
	}
	s.morphisms[morphism.Name] = morphism.Clone()
	return nil
}

func (s *MemoryStore) GetMorphism(_ context.Context, name string) (model.Morphism, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.Morphism{}, false, ErrNotInitialized
	}
	morphism, ok := s.morphisms[name]
	if !ok {
		return model.Morphism{}, false, nil
	}
	return morphism.Clone(), true, nil
}

// ListMorphisms returns every stored morphism ordered by name.
func (s *MemoryStore) ListMorphisms(_ context.Context) ([]model.Morphism, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.Morphism, 0, len(s.morphisms))
	for _, morphism := range s.morphisms {
		out = append(out, morphism.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteMorphism(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.morphisms, name)
	return nil
}

func (s *MemoryStore) SaveRegistryCounts(_ context.Context, counts model.RegistryCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	copied := copyCounts(counts)
	s.counts = &copied
	return nil
}

func (s *MemoryStore) GetRegistryCounts(_ context.Context) (model.RegistryCounts, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RegistryCounts{}, false, ErrNotInitialized
	}
	if s.counts == nil {
		return model.RegistryCounts{}, false, nil
	}
	return copyCounts(*s.counts), true, nil
}

func copyCounts(counts model.RegistryCounts) model.RegistryCounts {
	out := model.RegistryCounts{
		VersionedRecord: counts.VersionedRecord,
		Usage:           make(map[string]int, len(counts.Usage)),
		CoResonance:     append([]model.PairCount(nil), counts.CoResonance...),
		Precedence:      append([]model.PairCount(nil), counts.Precedence...),
	}
	for name, n := range counts.Usage {
		out.Usage[name] = n
	}
	return out
}

func (s *MemoryStore) SaveSynthesisRun(_ context.Context, run model.SynthesisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if run.RunID == "" {
		return ErrMissingKey
	}
	run.Seeds = append([]string(nil), run.Seeds...)
	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetSynthesisRun(_ context.Context, runID string) (model.SynthesisRun, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.SynthesisRun{}, false, ErrNotInitialized
	}
	run, ok := s.runs[runID]
	if !ok {
		return model.SynthesisRun{}, false, nil
	}
	run.Seeds = append([]string(nil), run.Seeds...)
	return run, true, nil
}

// ListSynthesisRuns returns runs newest first.
func (s *MemoryStore) ListSynthesisRuns(_ context.Context) ([]model.SynthesisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.SynthesisRun, 0, len(s.runs))
	for _, run := range s.runs {
		run.Seeds = append([]string(nil), run.Seeds...)
		out = append(out, run)
	}
	SortRuns(out)
	return out, nil
}

// SortRuns orders runs newest first, breaking ties by run ID.
func SortRuns(runs []model.SynthesisRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.lineage[runID] = copyLineage(lineage)
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	return copyLineage(lineage), true, nil
}

func copyLineage(lineage []model.LineageRecord) []model.LineageRecord {
	copied := make([]model.LineageRecord, len(lineage))
	for i, record := range lineage {
		record.ParentIDs = append([]string(nil), record.ParentIDs...)
		copied[i] = record
	}
	return copied
}
