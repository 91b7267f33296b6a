package resonance

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"morphogen/internal/metrics"
	"morphogen/internal/model"
)

// Weights are the tunable constants of the confidence formula:
//
//	vocab(m) = 1 - Π(1 - w)            over intent tokens whose vocabulary entries name m
//	fuzzy(m) = max edit similarity     between intent tokens and m's terms, if ≥ FuzzyFloor
//	base(m)  = Vocabulary·vocab(m) + Fuzzy·fuzzy(m)
//	conf(m)  = clamp01(base(m) + CoResonance·min(1, Σ co(m, n) / CoSaturation))
//
// where n ranges over the other plausible morphisms (base > 0).
type Weights struct {
	Vocabulary    float64
	Fuzzy         float64
	CoResonance   float64
	CoSaturation  float64
	FuzzyFloor    float64
	Keyword       float64
	MinConfidence float64
}

func DefaultWeights() Weights {
	return Weights{
		Vocabulary:    0.85,
		Fuzzy:         0.15,
		CoResonance:   0.10,
		CoSaturation:  3,
		FuzzyFloor:    0.7,
		Keyword:       0.9,
		MinConfidence: 0.5,
	}
}

type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ResonanceResult ranks the catalog against one intent. Candidates are at
// or above the requested confidence, highest first; NearMisses scored
// above zero but below it.
type ResonanceResult struct {
	Candidates        []Candidate `json:"candidates"`
	SuggestedPipeline []string    `json:"suggested_pipeline,omitempty"`
	GapDetected       bool        `json:"gap_detected"`
	NearMisses        []Candidate `json:"near_misses,omitempty"`
	UnresolvedTerms   []string    `json:"unresolved_terms,omitempty"`
	MissingMorphisms  []string    `json:"missing_morphisms,omitempty"`
}

// Top returns the best candidate, if any.
func (r ResonanceResult) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

type vocabHit struct {
	miss     float64
	firstPos int
}

// Match scores every registered morphism against intent. It never fails:
// an empty or low-confidence result is reported through GapDetected, which
// is also set when the intent names vocabulary whose morphisms are not
// registered. A minConfidence <= 0 uses the configured default.
func (r *Registry) Match(intent string, minConfidence float64) ResonanceResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w := r.weights
	threshold := minConfidence
	if threshold <= 0 {
		threshold = w.MinConfidence
	}
	tokens := Tokenize(intent)

	hits := make(map[string]*vocabHit)
	missing := make(map[string]struct{})
	var unresolved []string
	seenUnresolved := make(map[string]struct{})
	for pos, token := range tokens {
		entries := r.vocab.Lookup(token)
		if len(entries) == 0 {
			continue
		}
		resolved := false
		var absent []string
		for _, entry := range entries {
			if _, ok := r.morphisms[entry.Target]; !ok {
				absent = append(absent, entry.Target)
				continue
			}
			resolved = true
			hit, ok := hits[entry.Target]
			if !ok {
				hit = &vocabHit{miss: 1, firstPos: pos}
				hits[entry.Target] = hit
			}
			hit.miss *= 1 - clamp01(entry.Weight)
		}
		if resolved {
			continue
		}
		if _, ok := seenUnresolved[token]; !ok {
			seenUnresolved[token] = struct{}{}
			unresolved = append(unresolved, token)
		}
		for _, name := range absent {
			missing[name] = struct{}{}
		}
	}

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	base := make(map[string]float64, len(names))
	for _, name := range names {
		vocab := 0.0
		if hit, ok := hits[name]; ok {
			vocab = 1 - hit.miss
		}
		fuzzy := fuzzyScore(tokens, morphismTerms(r.morphisms[name]), w.FuzzyFloor)
		if score := w.Vocabulary*vocab + w.Fuzzy*fuzzy; score > 0 {
			base[name] = score
		}
	}

	var result ResonanceResult
	for _, name := range names {
		b, plausible := base[name]
		if !plausible {
			continue
		}
		coTotal := 0
		for other := range base {
			if other != name {
				coTotal += r.co[unordered(name, other)]
			}
		}
		bonus := 0.0
		if coTotal > 0 && w.CoSaturation > 0 {
			bonus = float64(coTotal) / w.CoSaturation
			if bonus > 1 {
				bonus = 1
			}
		}
		c := Candidate{Name: name, Confidence: clamp01(b + w.CoResonance*bonus)}
		if c.Confidence >= threshold {
			result.Candidates = append(result.Candidates, c)
		} else {
			result.NearMisses = append(result.NearMisses, c)
		}
	}
	sortCandidates(result.Candidates)
	sortCandidates(result.NearMisses)

	result.UnresolvedTerms = unresolved
	for name := range missing {
		result.MissingMorphisms = append(result.MissingMorphisms, name)
	}
	sort.Strings(result.MissingMorphisms)
	result.GapDetected = len(result.Candidates) == 0 || len(unresolved) > 0
	result.SuggestedPipeline = r.suggestPipeline(result.Candidates, hits)

	metrics.ObserveMatch(result.GapDetected, len(result.Candidates))
	r.logger.Debug("intent matched",
		zap.String("intent", intent),
		zap.Strings("tokens", tokens),
		zap.Int("candidates", len(result.Candidates)),
		zap.Bool("gap", result.GapDetected),
		zap.Strings("unresolved", unresolved),
	)
	return result
}

// suggestPipeline orders the candidates that were triggered by vocabulary
// terms. Recorded precedence wins, then the position of the first
// triggering term in the intent, then the name. It needs at least two
// candidates triggered at different positions.
func (r *Registry) suggestPipeline(candidates []Candidate, hits map[string]*vocabHit) []string {
	type member struct {
		name  string
		pos   int
		score int
	}
	var members []member
	positions := make(map[int]struct{})
	for _, c := range candidates {
		hit, ok := hits[c.Name]
		if !ok {
			continue
		}
		members = append(members, member{name: c.Name, pos: hit.firstPos})
		positions[hit.firstPos] = struct{}{}
	}
	if len(members) < 2 || len(positions) < 2 {
		return nil
	}
	for i := range members {
		for j := range members {
			if i == j {
				continue
			}
			members[i].score += r.precedence[pairKey{a: members[i].name, b: members[j].name}]
			members[i].score -= r.precedence[pairKey{a: members[j].name, b: members[i].name}]
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			return members[i].score > members[j].score
		}
		if members[i].pos != members[j].pos {
			return members[i].pos < members[j].pos
		}
		return members[i].name < members[j].name
	})
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.name
	}
	return out
}

// morphismTerms collects the words a morphism can be recognized by: its
// name as a whole and in parts, and the tokens of its description,
// signature and keywords.
func morphismTerms(m model.Morphism) []string {
	set := make(map[string]struct{})
	add := func(terms ...string) {
		for _, t := range terms {
			if t != "" {
				set[t] = struct{}{}
			}
		}
	}
	parts := splitName(m.Name)
	joined := ""
	for _, p := range parts {
		joined += p
		if _, stop := stopwords[p]; !stop {
			add(Stem(p))
		}
	}
	add(joined)
	add(Tokenize(m.Description)...)
	add(Tokenize(m.Signature)...)
	for _, k := range m.Keywords {
		add(Tokenize(k)...)
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func fuzzyScore(tokens, terms []string, floor float64) float64 {
	best := 0.0
	for _, token := range tokens {
		for _, term := range terms {
			if s := similarity(token, term); s >= floor && s > best {
				best = s
			}
		}
	}
	return best
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Confidence != cs[j].Confidence {
			return cs[i].Confidence > cs[j].Confidence
		}
		return cs[i].Name < cs[j].Name
	})
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
