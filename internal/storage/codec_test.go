package storage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMorphismCodecRoundTrip(t *testing.T) {
	avg := averageMorphism()
	data, err := EncodeMorphism(avg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeMorphism(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(avg, decoded); diff != "" {
		t.Fatalf("round trip changed morphism (-want +got):\n%s", diff)
	}
}

func TestDecodeMorphismRejectsVersionMismatch(t *testing.T) {
	avg := averageMorphism()
	avg.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeMorphism(avg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeMorphism(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	avg = averageMorphism()
	avg.Implementation.Algebra.CodecVersion = CurrentCodecVersion + 1
	data, _ = EncodeMorphism(avg)
	if _, err := DecodeMorphism(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected algebra ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeMorphismRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeMorphism([]byte(`{"name":`)); err == nil {
		t.Fatal("expected malformed payload error")
	}
}

func TestRegistryCountsCodec(t *testing.T) {
	data, err := EncodeRegistryCounts(sampleCounts())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRegistryCounts(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(sampleCounts(), decoded); diff != "" {
		t.Fatalf("round trip changed counts (-want +got):\n%s", diff)
	}

	empty, err := DecodeRegistryCounts([]byte(`{"schema_version":1,"codec_version":1}`))
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if empty.Usage == nil {
		t.Fatal("expected non-nil usage map")
	}

	if _, err := DecodeRegistryCounts([]byte(`{"schema_version":2,"codec_version":1}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestSynthesisRunCodec(t *testing.T) {
	run := sampleRun("run-1", "2026-01-02T03:04:05Z")
	data, err := EncodeSynthesisRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSynthesisRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(run, decoded); diff != "" {
		t.Fatalf("round trip changed run (-want +got):\n%s", diff)
	}
	if _, err := DecodeSynthesisRun([]byte(`{"run_id":"x"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for unversioned run, got %v", err)
	}
}
