package storage

import (
	"testing"
	"time"
)

func TestEncodedTimestamp(t *testing.T) {
	sample := RateSample{Timestamp: time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)}
	if got := sample.EncodedTimestamp(); got != "2026-08-26T00:00:00.000Z" {
		t.Fatalf("unexpected encoding %q", got)
	}

	// Round-trips through the layout used by range predicates.
	parsed, err := time.Parse(TimestampLayout, sample.EncodedTimestamp())
	if err != nil {
		t.Fatalf("parse encoded timestamp: %v", err)
	}
	if !parsed.Equal(sample.Timestamp) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, sample.Timestamp)
	}
}

func TestEncodedTimestampOrdering(t *testing.T) {
	earlier := RateSample{Timestamp: time.Date(2026, 8, 9, 0, 0, 0, 0, time.UTC)}
	later := RateSample{Timestamp: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)}

	if earlier.EncodedTimestamp() >= later.EncodedTimestamp() {
		t.Fatalf("lexicographic order must follow chronological order: %q vs %q",
			earlier.EncodedTimestamp(), later.EncodedTimestamp())
	}
}

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  0x4DDC2D193948926D02f9B1fE9e1daa0718270ED5 ")
	if got != "0x4ddc2d193948926d02f9b1fe9e1daa0718270ed5" {
		t.Fatalf("unexpected normalisation %q", got)
	}
}
