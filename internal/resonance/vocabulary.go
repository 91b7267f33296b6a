package resonance

import "sort"

// VocabEntry links an intent term to a morphism it suggests.
type VocabEntry struct {
	Target string  `json:"target" yaml:"target"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Vocabulary maps stemmed intent terms to the morphisms they suggest.
type Vocabulary map[string][]VocabEntry

// Add links every token of term to target, tokenizing term exactly as
// intents are tokenized. A repeated link keeps the larger weight.
func (v Vocabulary) Add(term, target string, weight float64) {
	for _, token := range Tokenize(term) {
		v.addToken(token, target, weight)
	}
}

func (v Vocabulary) addToken(term, target string, weight float64) {
	for i, entry := range v[term] {
		if entry.Target == target {
			if weight > entry.Weight {
				v[term][i].Weight = weight
			}
			return
		}
	}
	v[term] = append(v[term], VocabEntry{Target: target, Weight: weight})
	sort.Slice(v[term], func(i, j int) bool { return v[term][i].Target < v[term][j].Target })
}

// Lookup returns the entries for a token, trying the token with a trailing
// "e" when the bare stem is unknown.
func (v Vocabulary) Lookup(token string) []VocabEntry {
	if entries, ok := v[token]; ok {
		return entries
	}
	return v[token+"e"]
}

func (v Vocabulary) Clone() Vocabulary {
	out := make(Vocabulary, len(v))
	for term, entries := range v {
		out[term] = append([]VocabEntry(nil), entries...)
	}
	return out
}

// DefaultVocabulary covers the starter catalog.
func DefaultVocabulary() Vocabulary {
	v := Vocabulary{}
	for target, terms := range map[string]map[string]float64{
		"subscribe": {
			"track": 1, "subscribe": 1, "listen": 0.8, "watch": 0.8, "observe": 0.8,
			"stream": 0.6, "event": 0.5,
		},
		"groupByTime": {
			"time": 1, "window": 1, "period": 0.9, "interval": 0.9, "bucket": 0.8,
			"group": 0.6, "batch": 0.6, "event": 0.3,
		},
		"map": {
			"transform": 1, "map": 1, "convert": 0.9, "apply": 0.6,
		},
		"filter": {
			"filter": 1, "exclude": 0.8, "keep": 0.7, "select": 0.7, "only": 0.6, "remove": 0.4,
		},
		"fold": {
			"reduce": 1, "fold": 1, "accumulate": 0.9, "aggregate": 0.8, "combine": 0.7,
		},
		"analyzeSentimentDelta": {
			"sentiment": 1, "emotional": 0.9, "emotion": 0.9, "mood": 0.9, "shift": 0.9,
			"feel": 0.8, "delta": 0.8, "change": 0.7,
		},
		"average": {
			"average": 1, "mean": 1, "avg": 1,
		},
		"distinct": {
			"distinct": 1, "unique": 1, "dedupe": 1, "deduplicate": 1, "duplicate": 0.9,
			"remove": 0.5,
		},
		"median": {
			"median": 1, "middle": 0.9,
		},
	} {
		for term, weight := range terms {
			v.Add(term, target, weight)
		}
	}
	return v
}
