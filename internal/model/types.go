package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Versions written by this build.
const (
	SchemaVersion = 1
	CodecVersion  = 1
)

// CurrentVersion stamps a record with the versions written by this build.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: SchemaVersion, CodecVersion: CodecVersion}
}

// Tristate is a property value that may not have been verified yet.
type Tristate string

const (
	Unknown Tristate = "unknown"
	True    Tristate = "true"
	False   Tristate = "false"
)

func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

func (t Tristate) Known() bool {
	return t == True || t == False
}

// Properties are semantic facts about one morphism version.
type Properties struct {
	Associative Tristate `json:"associative"`
	Commutative Tristate `json:"commutative"`
	HasIdentity Tristate `json:"has_identity"`
	Idempotent  Tristate `json:"idempotent"`
}

func UnknownProperties() Properties {
	return Properties{Associative: Unknown, Commutative: Unknown, HasIdentity: Unknown, Idempotent: Unknown}
}

func (p Properties) Verified() bool {
	return p.Associative.Known() || p.Commutative.Known() || p.HasIdentity.Known() || p.Idempotent.Known()
}

type Origin string

const (
	OriginHandwritten Origin = "handwritten"
	OriginSynthesized Origin = "synthesized"
)

type Provenance struct {
	Origin     Origin   `json:"origin"`
	Parents    []string `json:"parents,omitempty"`
	Generation int      `json:"generation"`
	RunID      string   `json:"run_id,omitempty"`
}

type ImplementationKind string

const (
	ImplUnary    ImplementationKind = "unary"
	ImplFold     ImplementationKind = "fold"
	ImplPipeline ImplementationKind = "pipeline"
)

// Implementation is a closed union over the shapes a morphism can take:
// a unary function reference, a fold algebra, or a pipeline of other
// morphisms by name.
type Implementation struct {
	Kind    ImplementationKind `json:"kind"`
	Func    string             `json:"func,omitempty"`
	Algebra *Algebra           `json:"algebra,omitempty"`
	Steps   []string           `json:"steps,omitempty"`
}

func UnaryImpl(fn string) Implementation {
	return Implementation{Kind: ImplUnary, Func: fn}
}

func FoldImpl(a Algebra) Implementation {
	cloned := a.Clone()
	return Implementation{Kind: ImplFold, Algebra: &cloned}
}

func PipelineImpl(steps ...string) Implementation {
	return Implementation{Kind: ImplPipeline, Steps: append([]string(nil), steps...)}
}

type Morphism struct {
	VersionedRecord
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	Signature      string         `json:"signature"`
	Description    string         `json:"description,omitempty"`
	Keywords       []string       `json:"keywords,omitempty"`
	Implementation Implementation `json:"implementation"`
	Properties     Properties     `json:"properties"`
	Provenance     Provenance     `json:"provenance"`
}

// NextVersion returns a new record derived from m. The receiver is left
// untouched; the copy links back to it through its provenance.
func (m Morphism) NextVersion(name string) Morphism {
	next := m.Clone()
	next.Version = m.Version + 1
	if next.Version < 2 {
		next.Version = 2
	}
	next.Name = name
	next.Provenance.Parents = []string{m.Name}
	next.Provenance.Generation = m.Provenance.Generation + 1
	next.Properties = UnknownProperties()
	return next
}

func (m Morphism) Clone() Morphism {
	out := m
	out.Keywords = append([]string(nil), m.Keywords...)
	out.Provenance.Parents = append([]string(nil), m.Provenance.Parents...)
	out.Implementation.Steps = append([]string(nil), m.Implementation.Steps...)
	if m.Implementation.Algebra != nil {
		a := m.Implementation.Algebra.Clone()
		out.Implementation.Algebra = &a
	}
	return out
}

// TestCase is one input/expected-output example for synthesis.
type TestCase struct {
	Input    []float64 `json:"input"`
	Expected Value     `json:"expected"`
}

type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestFitness          float64 `json:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
	GatedCount           int     `json:"gated_count"`
	BestAlgebraID        string  `json:"best_algebra_id"`
}

type LineageRecord struct {
	AlgebraID   string   `json:"algebra_id"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
	Generation  int      `json:"generation"`
	Operation   string   `json:"operation"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// SynthesisRun is the persisted summary of one Synthesize call.
type SynthesisRun struct {
	VersionedRecord
	RunID        string   `json:"run_id"`
	CreatedAtUTC string   `json:"created_at_utc"`
	Seed         int64    `json:"seed"`
	Seeds        []string `json:"seeds"`
	Cases        int      `json:"cases"`
	Success      bool     `json:"success"`
	Attempts     int      `json:"attempts"`
	Generations  int      `json:"generations"`
	BestFitness  float64  `json:"best_fitness"`
	MorphismName string   `json:"morphism_name,omitempty"`
	Gap          string   `json:"gap,omitempty"`
}

// PairCount is one sparse cell of a (name, name) → count table.
type PairCount struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

// RegistryCounts holds the registry's monotonically growing aggregates.
type RegistryCounts struct {
	VersionedRecord
	Usage       map[string]int `json:"usage"`
	CoResonance []PairCount    `json:"co_resonance"`
	Precedence  []PairCount    `json:"precedence"`
}
