// Package config loads morphogen settings from YAML over built-in defaults
// and validates them before they reach the registry or the synthesizer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"morphogen/internal/evo"
	"morphogen/internal/resonance"
)

var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

type Config struct {
	Matcher   MatcherConfig   `yaml:"matcher"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MatcherConfig holds the confidence formula constants and any vocabulary
// terms added on top of the defaults.
type MatcherConfig struct {
	VocabularyWeight   float64          `yaml:"vocabulary_weight" validate:"gte=0,lte=1"`
	FuzzyWeight        float64          `yaml:"fuzzy_weight" validate:"gte=0,lte=1"`
	CoResonanceWeight  float64          `yaml:"co_resonance_weight" validate:"gte=0,lte=1"`
	CoSaturation       float64          `yaml:"co_saturation" validate:"gt=0"`
	FuzzyFloor         float64          `yaml:"fuzzy_floor" validate:"gte=0,lte=1"`
	KeywordWeight      float64          `yaml:"keyword_weight" validate:"gt=0,lte=1"`
	MinConfidence      float64          `yaml:"min_confidence" validate:"gt=0,lte=1"`
	VerificationTrials int              `yaml:"verification_trials" validate:"gte=1"`
	Vocabulary         []VocabularyTerm `yaml:"vocabulary,omitempty" validate:"dive"`
}

type VocabularyTerm struct {
	Term   string  `yaml:"term" validate:"required"`
	Target string  `yaml:"target" validate:"required"`
	Weight float64 `yaml:"weight" validate:"gt=0,lte=1"`
}

type SynthesisConfig struct {
	Seeds            []string           `yaml:"seeds" validate:"min=1,dive,oneof=sum product max min count set_insert list_append"`
	PopulationSize   int                `yaml:"population_size" validate:"gte=1"`
	EliteCount       int                `yaml:"elite_count" validate:"gte=1,ltefield=PopulationSize"`
	MaxGenerations   int                `yaml:"max_generations" validate:"gte=1"`
	MaxDuration      time.Duration      `yaml:"max_duration" validate:"gte=0"`
	CrossoverRate    float64            `yaml:"crossover_rate" validate:"gte=0,lte=1"`
	ComplexityLimit  int                `yaml:"complexity_limit" validate:"gte=2"`
	PurityWeight     float64            `yaml:"purity_weight" validate:"gt=0,lte=1"`
	DuplicatePenalty float64            `yaml:"duplicate_penalty" validate:"gt=0,lte=1"`
	Selection        string             `yaml:"selection" validate:"oneof=tournament elite fitness_proportional"`
	MutationWeights  map[string]float64 `yaml:"mutation_weights,omitempty" validate:"dive,keys,required,endkeys,gte=0"`
	Workers          int                `yaml:"workers" validate:"gte=1"`
	Seed             int64              `yaml:"seed"`
	DisableRetry     bool               `yaml:"disable_retry"`
}

type StorageConfig struct {
	Backend      string `yaml:"backend" validate:"oneof=memory sqlite"`
	SQLitePath   string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	ArtifactsDir string `yaml:"artifacts_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	w := resonance.DefaultWeights()
	seeds := evo.DefaultSeeds()
	seedNames := make([]string, len(seeds))
	for i, s := range seeds {
		seedNames[i] = s.Op
	}
	return Config{
		Matcher: MatcherConfig{
			VocabularyWeight:   w.Vocabulary,
			FuzzyWeight:        w.Fuzzy,
			CoResonanceWeight:  w.CoResonance,
			CoSaturation:       w.CoSaturation,
			FuzzyFloor:         w.FuzzyFloor,
			KeywordWeight:      w.Keyword,
			MinConfidence:      w.MinConfidence,
			VerificationTrials: 32,
		},
		Synthesis: SynthesisConfig{
			Seeds:            seedNames,
			PopulationSize:   128,
			EliteCount:       8,
			MaxGenerations:   50,
			CrossoverRate:    0.4,
			ComplexityLimit:  evo.DefaultComplexityLimit,
			PurityWeight:     0.1,
			DuplicatePenalty: 0.5,
			Selection:        "tournament",
			Workers:          1,
			Seed:             1,
		},
		Storage: StorageConfig{
			Backend:      "memory",
			SQLitePath:   "morphogen.db",
			ArtifactsDir: "runs",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	ops := evo.DefaultOperatorSet()
	for name := range c.Synthesis.MutationWeights {
		if _, err := ops.Lookup(name); err != nil {
			return fmt.Errorf("%w: unknown mutation operator %q", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Write stores cfg as YAML, creating parent directories.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (m MatcherConfig) Weights() resonance.Weights {
	return resonance.Weights{
		Vocabulary:    m.VocabularyWeight,
		Fuzzy:         m.FuzzyWeight,
		CoResonance:   m.CoResonanceWeight,
		CoSaturation:  m.CoSaturation,
		FuzzyFloor:    m.FuzzyFloor,
		Keyword:       m.KeywordWeight,
		MinConfidence: m.MinConfidence,
	}
}

// BuildVocabulary returns the default vocabulary extended with the
// configured terms.
func (m MatcherConfig) BuildVocabulary() resonance.Vocabulary {
	v := resonance.DefaultVocabulary()
	for _, t := range m.Vocabulary {
		v.Add(t.Term, t.Target, t.Weight)
	}
	return v
}

// RegistryOptions turns the matcher settings into registry options.
func (m MatcherConfig) RegistryOptions() []resonance.Option {
	return []resonance.Option{
		resonance.WithWeights(m.Weights()),
		resonance.WithVocabulary(m.BuildVocabulary()),
		resonance.WithVerificationTrials(m.VerificationTrials),
	}
}

// Options converts the synthesis settings into evo options. Intent, name,
// logger and run ID are left for the caller.
func (s SynthesisConfig) Options() (evo.Options, error) {
	seeds, err := evo.SeedsByName(s.Seeds)
	if err != nil {
		return evo.Options{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var weights map[string]float64
	if len(s.MutationWeights) > 0 {
		weights = make(map[string]float64, len(s.MutationWeights))
		for name, w := range s.MutationWeights {
			weights[name] = w
		}
	}
	return evo.Options{
		Seeds:            seeds,
		PopulationSize:   s.PopulationSize,
		EliteCount:       s.EliteCount,
		MaxGenerations:   s.MaxGenerations,
		MaxDuration:      s.MaxDuration,
		CrossoverRate:    evo.Rate(s.CrossoverRate),
		ComplexityLimit:  s.ComplexityLimit,
		PurityWeight:     s.PurityWeight,
		DuplicatePenalty: s.DuplicatePenalty,
		Selection:        s.Selection,
		MutationWeights:  weights,
		Workers:          s.Workers,
		Seed:             s.Seed,
		DisableRetry:     s.DisableRetry,
	}, nil
}
