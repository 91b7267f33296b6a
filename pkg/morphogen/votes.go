package morphogen

import (
	"sort"

	"morphogen/internal/resonance"
)

// Vote is one matcher's answer for the same intent. Weight <= 0 counts as 1.
type Vote struct {
	Result resonance.ResonanceResult
	Weight float64
}

type VoteResult struct {
	Candidates  []resonance.Candidate
	GapDetected bool
	Voters      int
}

// AggregateVotes combines results from independent registries. A
// candidate's confidence is the weight-averaged confidence across all
// voters, counting 0 where a voter did not propose it. The gap flag is a
// weighted majority; ties report a gap.
func AggregateVotes(votes []Vote) VoteResult {
	out := VoteResult{Voters: len(votes)}
	if len(votes) == 0 {
		out.GapDetected = true
		return out
	}

	total := 0.0
	gapWeight := 0.0
	scores := make(map[string]float64)
	for _, v := range votes {
		w := v.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		if v.Result.GapDetected {
			gapWeight += w
		}
		for _, c := range v.Result.Candidates {
			scores[c.Name] += w * c.Confidence
		}
	}

	for name, score := range scores {
		out.Candidates = append(out.Candidates, resonance.Candidate{Name: name, Confidence: score / total})
	}
	sort.Slice(out.Candidates, func(i, j int) bool {
		if out.Candidates[i].Confidence != out.Candidates[j].Confidence {
			return out.Candidates[i].Confidence > out.Candidates[j].Confidence
		}
		return out.Candidates[i].Name < out.Candidates[j].Name
	})
	out.GapDetected = gapWeight*2 >= total
	return out
}
