package morphogen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"morphogen/internal/model"
	"morphogen/internal/resonance"
	"morphogen/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, skipStarter bool) *Client {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:          "memory",
		ArtifactsDir:       filepath.Join(base, "runs"),
		ExportsDir:         filepath.Join(base, "exports"),
		SkipStarterCatalog: skipStarter,
		Now: func() time.Time {
			return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Init(context.Background()))
	return client
}

func meanCases() []model.TestCase {
	return []model.TestCase{
		{Input: []float64{1, 2, 3}, Expected: model.Scalar(2)},
		{Input: []float64{1, 2, 6}, Expected: model.Scalar(3)},
		{Input: []float64{10}, Expected: model.Scalar(10)},
		{Input: []float64{0, 4}, Expected: model.Scalar(2)},
		{Input: []float64{-3, 3}, Expected: model.Scalar(0)},
	}
}

func TestNewRejectsInvalidStorage(t *testing.T) {
	if _, err := New(Options{StoreKind: "postgres"}); err == nil {
		t.Fatal("expected invalid backend error")
	}
}

func TestClientLoadsStarterCatalog(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	catalog, err := client.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, catalog, len(resonance.StarterCatalog()))

	result, err := client.Match(ctx, "track emotional shifts over time", 0)
	require.NoError(t, err)
	assert.False(t, result.GapDetected)
	assert.ElementsMatch(t, []string{"subscribe", "groupByTime", "analyzeSentimentDelta"}, []string{
		result.Candidates[0].Name, result.Candidates[1].Name, result.Candidates[2].Name,
	})
}

func TestClientRegisterPersistsAndRejectsDuplicates(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()

	m := resonance.StarterCatalog()[6]
	require.NoError(t, client.Register(ctx, m))
	assert.ErrorIs(t, client.Register(ctx, m), resonance.ErrDuplicateName)

	stored, ok, err := client.store.GetMorphism(ctx, m.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m.Name, stored.Name)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, model.True, stored.Properties.Commutative)

	got, ok, err := client.Get(ctx, m.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.Properties, got.Properties)
}

type failingSaveStore struct {
	storage.Store
}

func (failingSaveStore) SaveMorphism(context.Context, model.Morphism) error {
	return errors.New("disk full")
}

func TestClientRegisterLeavesCatalogUnchangedWhenPersistFails(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()
	client.store = failingSaveStore{Store: client.store}

	m := resonance.StarterCatalog()[6]
	err := client.Register(ctx, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok, err := client.Get(ctx, m.Name)
	require.NoError(t, err)
	assert.False(t, ok, "a morphism that was not persisted must not be served")

	result, err := client.Match(ctx, "average of numbers", 0)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

func TestClientReviseRegistersNextVersion(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	base, ok, err := client.Get(ctx, "average")
	require.NoError(t, err)
	require.True(t, ok)

	revised, err := client.Revise(ctx, Revision{
		Base:        "average",
		Name:        "average_v2",
		Description: "arithmetic mean, revised",
		Keywords:    []string{"arithmetic mean"},
	})
	require.NoError(t, err)
	assert.Equal(t, "average_v2", revised.Name)
	assert.Equal(t, base.Version+1, revised.Version)
	assert.Equal(t, []string{"average"}, revised.Provenance.Parents)
	assert.Equal(t, base.Implementation.Algebra.Summary(), revised.Implementation.Algebra.Summary())
	assert.Equal(t, model.True, revised.Properties.Commutative)

	stored, ok, err := client.store.GetMorphism(ctx, "average_v2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "arithmetic mean, revised", stored.Description)

	_, ok, err = client.Get(ctx, "average")
	require.NoError(t, err)
	assert.True(t, ok, "the base version stays registered")

	_, err = client.Revise(ctx, Revision{Base: "average", Name: "average"})
	assert.ErrorIs(t, err, resonance.ErrDuplicateName)
	_, err = client.Revise(ctx, Revision{Base: "missing", Name: "missing_v2"})
	assert.ErrorIs(t, err, resonance.ErrUnknownMorphism)
}

func TestClientRecordUsagePersistsCounts(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	require.NoError(t, client.RecordUsage(ctx, []string{"subscribe", "groupByTime"}))
	counts, ok, err := client.store.GetRegistryCounts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, counts.Usage["subscribe"])
	assert.Equal(t, []model.PairCount{{A: "groupByTime", B: "subscribe", Count: 1}}, counts.CoResonance)
	assert.Equal(t, []model.PairCount{{A: "subscribe", B: "groupByTime", Count: 1}}, counts.Precedence)
}

func TestClientLoadRestoresCountsFromStore(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	require.NoError(t, client.RecordUsage(ctx, []string{"subscribe", "groupByTime"}))
	require.NoError(t, client.Save(ctx))
	require.NoError(t, client.Load(ctx))

	registry := client.Registry()
	assert.Equal(t, 1, registry.Usage("subscribe"))
	assert.Equal(t, 1, registry.CoResonance("subscribe", "groupByTime"))
	assert.Equal(t, len(resonance.StarterCatalog()), registry.Len())
}

func TestClientRegistryIsSnapshot(t *testing.T) {
	client := newTestClient(t, false)
	snap := client.Registry()
	require.NoError(t, client.RecordUsage(context.Background(), []string{"subscribe"}))
	assert.Equal(t, 0, snap.Usage("subscribe"))
}

func TestClientSynthesizeRecordsRun(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()

	result, err := client.Synthesize(ctx, SynthesizeRequest{
		Cases:          meanCases(),
		Name:           "mean",
		Seed:           1,
		MaxGenerations: 10,
		RunID:          "run-mean",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.Morphism)
	assert.Equal(t, "mean", result.Morphism.Name)

	_, ok, err := client.Get(ctx, "mean")
	require.NoError(t, err)
	assert.False(t, ok, "synthesis alone must not register")

	run, err := client.SynthesisRun(ctx, RunRef{RunID: "run-mean"})
	require.NoError(t, err)
	assert.True(t, run.Success)
	assert.Equal(t, "mean", run.MorphismName)
	assert.Equal(t, len(meanCases()), run.Cases)

	runDir := filepath.Join(client.artifactsDir, "run-mean")
	for _, name := range []string{"config.json", "fitness_history.json", "lineage.json", "morphism.json"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-mean", runs[0].RunID)
	assert.Equal(t, "2026-03-04T05:06:07Z", runs[0].CreatedAtUTC)
	assert.True(t, runs[0].Success)

	history, err := client.FitnessHistory(ctx, RunRef{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, result.History, history)

	diagnostics, err := client.Diagnostics(ctx, RunRef{RunID: "run-mean", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, diagnostics, 1)

	lineage, err := client.Lineage(ctx, RunRef{Latest: true})
	require.NoError(t, err)
	assert.NotEmpty(t, lineage)

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, "run-mean", exported.RunID)
	if _, err := os.Stat(filepath.Join(exported.Directory, "config.json")); err != nil {
		t.Fatalf("export missing config: %v", err)
	}

	summary, err := client.RunSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalRuns)
	assert.Equal(t, 1.0, summary.SuccessRate)
}

func TestClientRunQueriesValidateReference(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()

	_, err := client.Lineage(ctx, RunRef{RunID: "a", Latest: true})
	assert.Error(t, err)
	_, err = client.Lineage(ctx, RunRef{})
	assert.Error(t, err)
	_, err = client.FitnessHistory(ctx, RunRef{RunID: "a", Limit: -1})
	assert.Error(t, err)
	_, err = client.Diagnostics(ctx, RunRef{Latest: true})
	assert.EqualError(t, err, "no runs available")
	_, err = client.Export(ctx, ExportRequest{})
	assert.Error(t, err)
	_, err = client.Lineage(ctx, RunRef{RunID: "missing"})
	assert.EqualError(t, err, "lineage not found for run id: missing")

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestClientResolveMatchesWithoutSynthesis(t *testing.T) {
	client := newTestClient(t, false)

	res, err := client.Resolve(context.Background(), ResolveRequest{
		Intent: "average of numbers",
		Cases:  meanCases(),
	})
	require.NoError(t, err)
	assert.False(t, res.Match.GapDetected)
	assert.Nil(t, res.Synthesis)
	top, ok := res.Match.Top()
	require.True(t, ok)
	assert.Equal(t, "average", top.Name)
}

func TestClientResolveSynthesizesAndRegistersOnGap(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()

	res, err := client.Resolve(ctx, ResolveRequest{
		Intent:       "average of numbers",
		Cases:        meanCases(),
		Name:         "average",
		Seed:         1,
		AutoRegister: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Match.GapDetected)
	require.NotNil(t, res.Synthesis)
	require.True(t, res.Synthesis.Success)
	assert.Equal(t, "average", res.Registered)

	again, err := client.Match(ctx, "average of numbers", 0)
	require.NoError(t, err)
	assert.False(t, again.GapDetected)
	top, ok := again.Top()
	require.True(t, ok)
	assert.Equal(t, "average", top.Name)
	assert.GreaterOrEqual(t, top.Confidence, 0.85)

	stored, ok, err := client.store.GetMorphism(ctx, "average")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.OriginSynthesized, stored.Provenance.Origin)
}

func TestClientResolveWithoutCasesReportsGapOnly(t *testing.T) {
	client := newTestClient(t, true)
	res, err := client.Resolve(context.Background(), ResolveRequest{Intent: "average of numbers"})
	require.NoError(t, err)
	assert.True(t, res.Match.GapDetected)
	assert.Nil(t, res.Synthesis)
	assert.Empty(t, res.Registered)
}
