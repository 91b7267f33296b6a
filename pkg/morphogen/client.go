// Package morphogen is the library surface: a Client owns one registry, a
// store and a run-artifact directory, and hands gaps found by the matcher
// to the synthesizer.
package morphogen

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"morphogen/internal/config"
	"morphogen/internal/evo"
	"morphogen/internal/model"
	"morphogen/internal/resonance"
	"morphogen/internal/stats"
	"morphogen/internal/storage"
)

const defaultExportsDir = "exports"

type Options struct {
	// Config defaults to config.Default() when nil.
	Config *config.Config
	// StoreKind, DBPath and ArtifactsDir override the config's storage
	// section when set.
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string

	// SkipStarterCatalog leaves the registry empty apart from persisted
	// morphisms.
	SkipStarterCatalog bool
	Logger             *zap.Logger
	Now                func() time.Time
}

type Client struct {
	cfg    config.Config
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time

	artifactsDir string
	exportsDir   string
	skipStarter  bool

	mu       sync.RWMutex
	registry *resonance.Registry
	ready    bool

	// writeMu serializes Register so a name is persisted and committed by
	// one caller at a time.
	writeMu sync.Mutex
}

func New(opts Options) (*Client, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.StoreKind != "" {
		cfg.Storage.Backend = opts.StoreKind
	}
	if opts.DBPath != "" {
		cfg.Storage.SQLitePath = opts.DBPath
	}
	if opts.ArtifactsDir != "" {
		cfg.Storage.ArtifactsDir = opts.ArtifactsDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		now:          now,
		artifactsDir: cfg.Storage.ArtifactsDir,
		exportsDir:   exportsDir,
		skipStarter:  opts.SkipStarterCatalog,
		registry:     newRegistry(cfg, logger),
	}, nil
}

func newRegistry(cfg config.Config, logger *zap.Logger) *resonance.Registry {
	opts := append(cfg.Matcher.RegistryOptions(), resonance.WithLogger(logger))
	return resonance.NewRegistry(opts...)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Init opens the store and loads the persisted catalog and usage counts.
// Calling it again is a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	registry, err := c.loadRegistry(ctx)
	if err != nil {
		return err
	}
	c.registry = registry
	c.ready = true
	return nil
}

func (c *Client) ensureReady(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()
	if ready {
		return nil
	}
	return c.Init(ctx)
}

func (c *Client) loadRegistry(ctx context.Context) (*resonance.Registry, error) {
	morphisms, err := c.store.ListMorphisms(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	counts, ok, err := c.store.GetRegistryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load usage counts: %w", err)
	}
	state := resonance.State{Morphisms: morphisms}
	if ok {
		state.Counts = counts
	}

	registry := newRegistry(c.cfg, c.logger)
	for _, m := range state.Morphisms {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("restore %s: %w", m.Name, err)
		}
	}
	if !c.skipStarter {
		if err := registry.LoadStarterCatalog(); err != nil {
			return nil, err
		}
	}
	registry.MergeCounts(state.Counts)
	c.logger.Debug("registry loaded",
		zap.Int("persisted", len(morphisms)),
		zap.Int("catalog", registry.Len()),
	)
	return registry, nil
}

func (c *Client) reg() *resonance.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// Registry returns a snapshot of the current catalog.
func (c *Client) Registry() *resonance.Registry {
	return c.reg().Snapshot()
}

func (c *Client) Config() config.Config {
	return c.cfg
}

// Register adds m to the catalog and persists it. The store is written
// first; if that fails the catalog is left unchanged.
func (c *Client) Register(ctx context.Context, m model.Morphism) error {
	_, err := c.register(ctx, m)
	return err
}

func (c *Client) register(ctx context.Context, m model.Morphism) (model.Morphism, error) {
	if err := c.ensureReady(ctx); err != nil {
		return model.Morphism{}, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	registry := c.reg()
	stored, err := registry.Prepare(m)
	if err != nil {
		return model.Morphism{}, err
	}
	if err := c.store.SaveMorphism(ctx, stored); err != nil {
		return model.Morphism{}, fmt.Errorf("persist %s: %w", m.Name, err)
	}
	if err := registry.Commit(stored); err != nil {
		return model.Morphism{}, err
	}
	return stored, nil
}

// Revision describes a new version of a registered morphism. Empty fields
// are inherited from the base.
type Revision struct {
	Base           string
	Name           string
	Signature      string
	Description    string
	Keywords       []string
	Implementation *model.Implementation
}

// Revise registers a new version of rev.Base under rev.Name. Names are never
// reused, so the revision must be given a fresh one; the base stays in the
// catalog and is recorded as the revision's parent.
func (c *Client) Revise(ctx context.Context, rev Revision) (model.Morphism, error) {
	if err := c.ensureReady(ctx); err != nil {
		return model.Morphism{}, err
	}
	base, ok := c.reg().Get(rev.Base)
	if !ok {
		return model.Morphism{}, fmt.Errorf("%w: %s", resonance.ErrUnknownMorphism, rev.Base)
	}
	next := base.NextVersion(rev.Name)
	if rev.Signature != "" {
		next.Signature = rev.Signature
	}
	if rev.Description != "" {
		next.Description = rev.Description
	}
	if len(rev.Keywords) > 0 {
		next.Keywords = append([]string(nil), rev.Keywords...)
	}
	if rev.Implementation != nil {
		next.Implementation = *rev.Implementation
	}
	stored, err := c.register(ctx, next)
	if err != nil {
		return model.Morphism{}, err
	}
	c.logger.Debug("morphism revised",
		zap.String("base", base.Name),
		zap.String("name", stored.Name),
		zap.Int("version", stored.Version),
	)
	return stored, nil
}

func (c *Client) Get(ctx context.Context, name string) (model.Morphism, bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return model.Morphism{}, false, err
	}
	m, ok := c.reg().Get(name)
	return m, ok, nil
}

// Catalog lists the registered morphisms in registration order.
func (c *Client) Catalog(ctx context.Context) ([]model.Morphism, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.reg().Morphisms(), nil
}

func (c *Client) Match(ctx context.Context, intent string, minConfidence float64) (resonance.ResonanceResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return resonance.ResonanceResult{}, err
	}
	return c.reg().Match(intent, minConfidence), nil
}

// RecordUsage reports a composition the host actually used and persists the
// updated counts.
func (c *Client) RecordUsage(ctx context.Context, names []string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	registry := c.reg()
	registry.RecordUsage(names)
	if err := c.store.SaveRegistryCounts(ctx, registry.Counts()); err != nil {
		return fmt.Errorf("persist usage counts: %w", err)
	}
	return nil
}

// Save writes the whole catalog and its counts to the store.
func (c *Client) Save(ctx context.Context) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	state := c.reg().Export()
	for _, m := range state.Morphisms {
		if err := c.store.SaveMorphism(ctx, m); err != nil {
			return fmt.Errorf("persist %s: %w", m.Name, err)
		}
	}
	return c.store.SaveRegistryCounts(ctx, state.Counts)
}

// Load replaces the in-memory registry with the stored catalog.
func (c *Client) Load(ctx context.Context) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	registry, err := c.loadRegistry(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.registry = registry
	c.mu.Unlock()
	return nil
}

// Unregister removes a morphism from the store. The in-memory catalog
// keeps it until the next Load, since registered names are never reused.
func (c *Client) Unregister(ctx context.Context, name string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	return c.store.DeleteMorphism(ctx, name)
}

type SynthesizeRequest struct {
	Cases  []model.TestCase
	Name   string
	Intent string
	// Seed, MaxGenerations and ComplexityLimit override the configured
	// values when non-zero.
	Seed            int64
	MaxGenerations  int
	ComplexityLimit int
	Seeds           []string
	RunID           string
}

// Synthesize evolves a morphism for the cases. The run is recorded in the
// store and under the artifacts directory whether or not it succeeds. The
// returned morphism is not registered.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (evo.SynthesisResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return evo.SynthesisResult{}, err
	}
	opts, err := c.synthesisOptions(req)
	if err != nil {
		return evo.SynthesisResult{}, err
	}
	result, err := evo.Synthesize(ctx, req.Cases, opts)
	if err != nil {
		return evo.SynthesisResult{}, err
	}
	if err := c.recordRun(ctx, opts, req.Cases, result); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Client) synthesisOptions(req SynthesizeRequest) (evo.Options, error) {
	synth := c.cfg.Synthesis
	if len(req.Seeds) > 0 {
		synth.Seeds = req.Seeds
	}
	opts, err := synth.Options()
	if err != nil {
		return evo.Options{}, err
	}
	opts.Name = req.Name
	opts.Intent = req.Intent
	opts.RunID = req.RunID
	opts.Logger = c.logger
	if req.Seed != 0 {
		opts.Seed = req.Seed
	}
	if req.MaxGenerations > 0 {
		opts.MaxGenerations = req.MaxGenerations
	}
	if req.ComplexityLimit > 0 {
		opts.ComplexityLimit = req.ComplexityLimit
	}
	return opts, nil
}

func (c *Client) recordRun(ctx context.Context, opts evo.Options, cases []model.TestCase, result evo.SynthesisResult) error {
	createdAt := c.now()
	if err := c.store.SaveSynthesisRun(ctx, result.RunRecord(opts, len(cases), createdAt)); err != nil {
		return fmt.Errorf("persist run %s: %w", result.RunID, err)
	}
	if err := c.store.SaveFitnessHistory(ctx, result.RunID, result.History); err != nil {
		return err
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, result.RunID, result.Diagnostics); err != nil {
		return err
	}
	if err := c.store.SaveLineage(ctx, result.RunID, result.Lineage); err != nil {
		return err
	}

	artifacts := stats.NewRunArtifacts(opts, cases, result)
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, artifacts)
	if err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, artifacts.IndexEntry(createdAt)); err != nil {
		return fmt.Errorf("update run index: %w", err)
	}
	c.logger.Debug("synthesis run recorded",
		zap.String("run_id", result.RunID),
		zap.String("dir", filepath.Clean(runDir)),
	)
	return nil
}

type ResolveRequest struct {
	Intent        string
	MinConfidence float64
	// Cases are used only when the match reports a gap.
	Cases []model.TestCase
	Name  string
	Seed  int64
	// AutoRegister registers a synthesized morphism on success.
	AutoRegister bool
}

type Resolution struct {
	Match      resonance.ResonanceResult
	Synthesis  *evo.SynthesisResult
	Registered string
}

// Resolve matches the intent and, on a gap with examples available, runs
// synthesis for it.
func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	match, err := c.Match(ctx, req.Intent, req.MinConfidence)
	if err != nil {
		return Resolution{}, err
	}
	out := Resolution{Match: match}
	if !match.GapDetected || len(req.Cases) == 0 {
		return out, nil
	}

	result, err := c.Synthesize(ctx, SynthesizeRequest{
		Cases:  req.Cases,
		Name:   req.Name,
		Intent: req.Intent,
		Seed:   req.Seed,
	})
	if err != nil {
		return out, err
	}
	out.Synthesis = &result
	if !result.Success || !req.AutoRegister {
		return out, nil
	}
	if err := c.Register(ctx, *result.Morphism); err != nil {
		return out, fmt.Errorf("auto-register: %w", err)
	}
	out.Registered = result.Morphism.Name
	c.logger.Info("synthesized morphism registered",
		zap.String("name", out.Registered),
		zap.String("run_id", result.RunID),
	)
	return out, nil
}
