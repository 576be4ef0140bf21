package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/invauth"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	seen := map[invauth.MetricID]bool{}
	names := map[string]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("duplicate id %d", def.ID)
		}
		if names[def.Name] {
			t.Fatalf("duplicate name %s", def.Name)
		}
		if !strings.HasPrefix(def.Name, "invauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %s", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	if seen[invauth.MetricValidateLatency] {
		t.Fatal("latency histogram must not be exported as a counter")
	}
	if len(CounterDefs) != int(invauth.MetricValidateLatency) {
		t.Fatalf("expected %d counters, got %d", invauth.MetricValidateLatency, len(CounterDefs))
	}
}

func TestBuckets(t *testing.T) {
	if len(HistogramUpperBounds)+1 != BucketCount || len(HistogramBoundSuffix) != BucketCount {
		t.Fatal("bucket tables out of sync")
	}
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [BucketCount]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("cumulative buckets: got %v want %v", got, want)
	}
}
