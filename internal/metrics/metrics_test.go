package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMatchCountsOutcome(t *testing.T) {
	hits := testutil.ToFloat64(matchTotal.WithLabelValues(OutcomeHit))
	gaps := testutil.ToFloat64(matchTotal.WithLabelValues(OutcomeGap))

	ObserveMatch(false, 3)
	ObserveMatch(true, 0)
	ObserveMatch(true, 1)

	if got := testutil.ToFloat64(matchTotal.WithLabelValues(OutcomeHit)) - hits; got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(matchTotal.WithLabelValues(OutcomeGap)) - gaps; got != 2 {
		t.Fatalf("expected 2 gaps, got %v", got)
	}
}

func TestObserveUsageSplitsKnownNames(t *testing.T) {
	known := testutil.ToFloat64(usageRecorded.WithLabelValues("true"))
	unknown := testutil.ToFloat64(usageRecorded.WithLabelValues("false"))

	ObserveUsage(2, 1)

	if got := testutil.ToFloat64(usageRecorded.WithLabelValues("true")) - known; got != 2 {
		t.Fatalf("expected 2 known, got %v", got)
	}
	if got := testutil.ToFloat64(usageRecorded.WithLabelValues("false")) - unknown; got != 1 {
		t.Fatalf("expected 1 unknown, got %v", got)
	}
}

func TestObserveSynthesis(t *testing.T) {
	before := testutil.ToFloat64(synthesisTotal.WithLabelValues(OutcomeSuccess))
	retries := testutil.ToFloat64(synthesisRetries)

	ObserveSynthesis(OutcomeSuccess)
	ObserveSynthesisRetry()
	ObserveSynthesisAttempt(7)

	if got := testutil.ToFloat64(synthesisTotal.WithLabelValues(OutcomeSuccess)) - before; got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(synthesisRetries) - retries; got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
}
