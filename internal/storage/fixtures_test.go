package storage

import "morphogen/internal/model"

func version() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func averageMorphism() model.Morphism {
	return model.Morphism{
		VersionedRecord: version(),
		Name:            "average",
		Version:         1,
		Signature:       "[Number] → Number",
		Description:     "arithmetic mean",
		Keywords:        []string{"average", "mean"},
		Implementation: model.FoldImpl(model.Algebra{
			VersionedRecord: version(),
			Fields:          []model.Accumulator{model.Primitive(model.AccSum), model.Primitive(model.AccCount)},
			Finalize:        model.Finalize{Op: model.FinDiv, Args: []int{0, 1}},
		}),
		Properties: model.Properties{
			Associative: model.Unknown,
			Commutative: model.True,
			HasIdentity: model.False,
			Idempotent:  model.True,
		},
		Provenance: model.Provenance{Origin: model.OriginSynthesized, Parents: []string{"sum", "count"}, Generation: 4, RunID: "run-1"},
	}
}

func sampleRun(id, created string) model.SynthesisRun {
	return model.SynthesisRun{
		VersionedRecord: version(),
		RunID:           id,
		CreatedAtUTC:    created,
		Seed:            42,
		Seeds:           []string{"sum", "count"},
		Cases:           3,
		Success:         true,
		Attempts:        1,
		Generations:     5,
		BestFitness:     1,
		MorphismName:    "average",
	}
}

func sampleCounts() model.RegistryCounts {
	return model.RegistryCounts{
		VersionedRecord: version(),
		Usage:           map[string]int{"subscribe": 3, "groupByTime": 2},
		CoResonance:     []model.PairCount{{A: "groupByTime", B: "subscribe", Count: 2}},
		Precedence:      []model.PairCount{{A: "subscribe", B: "groupByTime", Count: 2}},
	}
}
