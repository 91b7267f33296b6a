//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"morphogen/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "morphogen.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	avg := averageMorphism()
	if err := store.SaveMorphism(ctx, avg); err != nil {
		t.Fatalf("save morphism: %v", err)
	}
	loaded, ok, err := store.GetMorphism(ctx, "average")
	if err != nil || !ok {
		t.Fatalf("get morphism: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(avg, loaded); diff != "" {
		t.Fatalf("unexpected morphism (-want +got):\n%s", diff)
	}
	list, err := store.ListMorphisms(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list morphisms: %+v err=%v", list, err)
	}
	if err := store.DeleteMorphism(ctx, "average"); err != nil {
		t.Fatalf("delete morphism: %v", err)
	}
	if _, ok, _ := store.GetMorphism(ctx, "average"); ok {
		t.Fatal("expected morphism to be deleted")
	}

	if err := store.SaveRegistryCounts(ctx, sampleCounts()); err != nil {
		t.Fatalf("save counts: %v", err)
	}
	counts, ok, err := store.GetRegistryCounts(ctx)
	if err != nil || !ok {
		t.Fatalf("get counts: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(sampleCounts(), counts); diff != "" {
		t.Fatalf("unexpected counts (-want +got):\n%s", diff)
	}

	for _, run := range []model.SynthesisRun{
		sampleRun("old", "2026-01-01T00:00:00Z"),
		sampleRun("new", "2026-02-01T00:00:00Z"),
	} {
		if err := store.SaveSynthesisRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListSynthesisRuns(ctx)
	if err != nil || len(runs) != 2 || runs[0].RunID != "new" {
		t.Fatalf("list runs: %+v err=%v", runs, err)
	}

	lineage := []model.LineageRecord{{AlgebraID: "alg-1", Generation: 0, Operation: "seed"}}
	if err := store.SaveLineage(ctx, "new", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	gotLineage, ok, err := store.GetLineage(ctx, "new")
	if err != nil || !ok || len(gotLineage) != 1 || gotLineage[0].AlgebraID != "alg-1" {
		t.Fatalf("get lineage: %+v ok=%t err=%v", gotLineage, ok, err)
	}

	if err := store.SaveFitnessHistory(ctx, "new", []float64{0.5, 1}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "new")
	if err != nil || !ok || len(history) != 2 {
		t.Fatalf("get history: %+v ok=%t err=%v", history, ok, err)
	}

	if _, ok, err := store.GetGenerationDiagnostics(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing diagnostics: ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "morphogen.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveMorphism(ctx, averageMorphism()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if _, ok, err := second.GetMorphism(ctx, "average"); err != nil || !ok {
		t.Fatalf("expected persisted morphism: ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	if err := store.SaveMorphism(context.Background(), averageMorphism()); err == nil {
		t.Fatal("expected not initialized error")
	}
}
