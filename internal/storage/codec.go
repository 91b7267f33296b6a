package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"morphogen/internal/model"
)

const (
	CurrentSchemaVersion = model.SchemaVersion
	CurrentCodecVersion  = model.CodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeMorphism(m model.Morphism) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMorphism(data []byte) (model.Morphism, error) {
	var morphism model.Morphism
	if err := json.Unmarshal(data, &morphism); err != nil {
		return model.Morphism{}, err
	}
	if err := checkVersion(morphism.VersionedRecord); err != nil {
		return model.Morphism{}, fmt.Errorf("morphism %s: %w", morphism.Name, err)
	}
	if a := morphism.Implementation.Algebra; a != nil && (a.SchemaVersion != 0 || a.CodecVersion != 0) {
		if err := checkVersion(a.VersionedRecord); err != nil {
			return model.Morphism{}, fmt.Errorf("morphism %s algebra: %w", morphism.Name, err)
		}
	}
	return morphism, nil
}

func EncodeRegistryCounts(c model.RegistryCounts) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeRegistryCounts(data []byte) (model.RegistryCounts, error) {
	var counts model.RegistryCounts
	if err := json.Unmarshal(data, &counts); err != nil {
		return model.RegistryCounts{}, err
	}
	if err := checkVersion(counts.VersionedRecord); err != nil {
		return model.RegistryCounts{}, err
	}
	if counts.Usage == nil {
		counts.Usage = map[string]int{}
	}
	return counts, nil
}

func EncodeSynthesisRun(r model.SynthesisRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeSynthesisRun(data []byte) (model.SynthesisRun, error) {
	var run model.SynthesisRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.SynthesisRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.SynthesisRun{}, err
	}
	return run, nil
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
