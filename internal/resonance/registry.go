// Package resonance keeps the morphism catalog and matches free-text
// intents against it.
package resonance

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"morphogen/internal/metrics"
	"morphogen/internal/model"
)

type pairKey struct {
	a, b string
}

// unordered normalizes a pair so that (x, y) and (y, x) share a key.
func unordered(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Registry is the morphism catalog plus its usage aggregates. All methods
// are safe for concurrent use; writers are serialized.
type Registry struct {
	mu sync.RWMutex

	morphisms map[string]model.Morphism
	order     []string
	vocab     Vocabulary

	usage      map[string]int
	co         map[pairKey]int
	precedence map[pairKey]int

	weights Weights
	trials  int
	logger  *zap.Logger
}

type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithWeights(w Weights) Option {
	return func(r *Registry) {
		r.weights = w
	}
}

// WithVocabulary replaces the default vocabulary.
func WithVocabulary(v Vocabulary) Option {
	return func(r *Registry) {
		r.vocab = v.Clone()
	}
}

// WithVerificationTrials sets how many random inputs property verification
// tries per property.
func WithVerificationTrials(n int) Option {
	return func(r *Registry) {
		r.trials = n
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		morphisms:  make(map[string]model.Morphism),
		vocab:      DefaultVocabulary(),
		usage:      make(map[string]int),
		co:         make(map[pairKey]int),
		precedence: make(map[pairKey]int),
		weights:    DefaultWeights(),
		trials:     defaultVerificationTrials,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds m to the catalog. Unknown properties are verified with
// randomized testing; properties already known are kept as given. On error
// the catalog is unchanged.
func (r *Registry) Register(m model.Morphism) error {
	stored, err := r.Prepare(m)
	if err != nil {
		return err
	}
	return r.Commit(stored)
}

// Prepare validates m and returns the record Register would store, without
// changing the catalog. Callers that persist before registering pass the
// result to Commit.
func (r *Registry) Prepare(m model.Morphism) (model.Morphism, error) {
	if err := validateMorphism(m); err != nil {
		return model.Morphism{}, err
	}
	r.mu.RLock()
	existing, ok := r.morphisms[m.Name]
	trials := r.trials
	r.mu.RUnlock()
	if ok {
		return model.Morphism{}, &DuplicateNameError{Name: m.Name, ExistingVersion: existing.Version}
	}

	stored := normalizeMorphism(m)
	rng := rand.New(rand.NewSource(nameSeed(stored.Name)))
	stored.Properties = mergeProperties(stored.Properties, VerifyProperties(stored.Implementation, rng, trials))
	return stored, nil
}

// Commit adds a record returned by Prepare. The name is checked again, so a
// concurrent registration of the same name still fails.
func (r *Registry) Commit(stored model.Morphism) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.morphisms[stored.Name]; ok {
		return &DuplicateNameError{Name: stored.Name, ExistingVersion: existing.Version}
	}
	stored = stored.Clone()
	r.morphisms[stored.Name] = stored
	r.order = append(r.order, stored.Name)
	for _, keyword := range stored.Keywords {
		r.vocab.Add(keyword, stored.Name, r.weights.Keyword)
	}
	r.logger.Debug("morphism registered",
		zap.String("name", stored.Name),
		zap.Int("version", stored.Version),
		zap.String("kind", string(stored.Implementation.Kind)),
		zap.String("origin", string(stored.Provenance.Origin)),
	)
	return nil
}

func validateMorphism(m model.Morphism) error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMorphism)
	}
	if m.Version < 0 {
		return fmt.Errorf("%w: %s: negative version", ErrInvalidMorphism, m.Name)
	}
	impl := m.Implementation
	switch impl.Kind {
	case model.ImplUnary:
		if impl.Func == "" {
			return fmt.Errorf("%w: %s: unary implementation needs a function", ErrInvalidMorphism, m.Name)
		}
	case model.ImplFold:
		if impl.Algebra == nil || len(impl.Algebra.Fields) == 0 {
			return fmt.Errorf("%w: %s: fold implementation needs an algebra", ErrInvalidMorphism, m.Name)
		}
	case model.ImplPipeline:
		if len(impl.Steps) == 0 {
			return fmt.Errorf("%w: %s: pipeline needs at least one step", ErrInvalidMorphism, m.Name)
		}
	default:
		return fmt.Errorf("%w: %s: implementation kind %q", ErrInvalidMorphism, m.Name, impl.Kind)
	}
	return nil
}

func normalizeMorphism(m model.Morphism) model.Morphism {
	out := m.Clone()
	if out.Version == 0 {
		out.Version = 1
	}
	if out.SchemaVersion == 0 && out.CodecVersion == 0 {
		out.VersionedRecord = model.CurrentVersion()
	}
	if out.Provenance.Origin == "" {
		out.Provenance.Origin = model.OriginHandwritten
	}
	for _, p := range []*model.Tristate{
		&out.Properties.Associative,
		&out.Properties.Commutative,
		&out.Properties.HasIdentity,
		&out.Properties.Idempotent,
	} {
		if *p == "" {
			*p = model.Unknown
		}
	}
	return out
}

func nameSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// Get returns a copy of the named morphism.
func (r *Registry) Get(name string) (model.Morphism, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.morphisms[name]
	if !ok {
		return model.Morphism{}, false
	}
	return m.Clone(), true
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Morphisms returns copies of every morphism in registration order.
func (r *Registry) Morphisms() []model.Morphism {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Morphism, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.morphisms[name].Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.morphisms)
}

// RecordUsage reports a composition the caller actually used. Known names
// bump their usage counter; each pair of distinct known names bumps its
// co-resonance once, and the earlier name's precedence over the later one.
// Unknown names are skipped with a warning.
func (r *Registry) RecordUsage(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := make([]string, 0, len(names))
	unknown := 0
	for _, name := range names {
		if _, ok := r.morphisms[name]; !ok {
			unknown++
			r.logger.Warn("ignoring unknown morphism in usage report", zap.String("name", name))
			continue
		}
		known = append(known, name)
		r.usage[name]++
	}
	metrics.ObserveUsage(len(known), unknown)

	coSeen := make(map[pairKey]struct{})
	precSeen := make(map[pairKey]struct{})
	for i := 0; i < len(known); i++ {
		for j := i + 1; j < len(known); j++ {
			if known[i] == known[j] {
				continue
			}
			key := unordered(known[i], known[j])
			if _, ok := coSeen[key]; !ok {
				coSeen[key] = struct{}{}
				r.co[key]++
			}
			ordered := pairKey{a: known[i], b: known[j]}
			if _, ok := precSeen[ordered]; !ok {
				precSeen[ordered] = struct{}{}
				r.precedence[ordered]++
			}
		}
	}
}

func (r *Registry) Usage(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usage[name]
}

// CoResonance is symmetric in its arguments.
func (r *Registry) CoResonance(a, b string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.co[unordered(a, b)]
}

// Precedence counts how often a was used before b.
func (r *Registry) Precedence(a, b string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.precedence[pairKey{a: a, b: b}]
}

// Snapshot returns an independent copy that later writes to r do not
// affect.
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := &Registry{
		morphisms:  make(map[string]model.Morphism, len(r.morphisms)),
		order:      append([]string(nil), r.order...),
		vocab:      r.vocab.Clone(),
		usage:      make(map[string]int, len(r.usage)),
		co:         make(map[pairKey]int, len(r.co)),
		precedence: make(map[pairKey]int, len(r.precedence)),
		weights:    r.weights,
		trials:     r.trials,
		logger:     r.logger,
	}
	for name, m := range r.morphisms {
		out.morphisms[name] = m.Clone()
	}
	for name, n := range r.usage {
		out.usage[name] = n
	}
	for key, n := range r.co {
		out.co[key] = n
	}
	for key, n := range r.precedence {
		out.precedence[key] = n
	}
	return out
}

// Counts exports the usage aggregates as sparse, sorted pair lists.
func (r *Registry) Counts() model.RegistryCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := model.RegistryCounts{
		VersionedRecord: model.CurrentVersion(),
		Usage:           make(map[string]int, len(r.usage)),
		CoResonance:     pairCounts(r.co),
		Precedence:      pairCounts(r.precedence),
	}
	for name, n := range r.usage {
		counts.Usage[name] = n
	}
	return counts
}

// MergeCounts adds counts into the registry's aggregates. Entries naming
// morphisms that are not registered are dropped.
func (r *Registry) MergeCounts(counts model.RegistryCounts) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, n := range counts.Usage {
		if _, ok := r.morphisms[name]; ok && n > 0 {
			r.usage[name] += n
		}
	}
	for _, pc := range counts.CoResonance {
		if r.knownPair(pc) {
			r.co[unordered(pc.A, pc.B)] += pc.Count
		}
	}
	for _, pc := range counts.Precedence {
		if r.knownPair(pc) {
			r.precedence[pairKey{a: pc.A, b: pc.B}] += pc.Count
		}
	}
}

func (r *Registry) knownPair(pc model.PairCount) bool {
	_, okA := r.morphisms[pc.A]
	_, okB := r.morphisms[pc.B]
	return okA && okB && pc.A != pc.B && pc.Count > 0
}

func pairCounts(m map[pairKey]int) []model.PairCount {
	out := make([]model.PairCount, 0, len(m))
	for key, n := range m {
		out = append(out, model.PairCount{A: key.a, B: key.b, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// State is the JSON-friendly form of a registry: a flat morphism list and
// sparse pair counts.
type State struct {
	Morphisms []model.Morphism     `json:"morphisms"`
	Counts    model.RegistryCounts `json:"counts"`
}

func (r *Registry) Export() State {
	return State{Morphisms: r.Morphisms(), Counts: r.Counts()}
}

// NewRegistryFromState rebuilds a registry. Stored properties are kept.
func NewRegistryFromState(state State, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	for _, m := range state.Morphisms {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	r.MergeCounts(state.Counts)
	return r, nil
}

// LoadStarterCatalog registers StarterCatalog entries that are not yet in
// the registry.
func (r *Registry) LoadStarterCatalog() error {
	for _, m := range StarterCatalog() {
		if _, ok := r.Get(m.Name); ok {
			continue
		}
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
