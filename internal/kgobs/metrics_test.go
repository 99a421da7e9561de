package kgobs

import "testing"

func TestMockMetrics_RecordsCountsAndHists(t *testing.T) {
	m := NewMockMetrics()
	m.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "processed"})
	m.IncCounter("kgscheduler_documents_total", map[string]string{"outcome": "processed"})
	m.ObserveHistogram("kgscheduler_chunk_extract_ms", 12, nil)
	m.ObserveHistogram("kgscheduler_chunk_extract_ms", 34, nil)

	if m.Counters["kgscheduler_documents_total"] != 2 {
		t.Fatalf("expected 2, got %d", m.Counters["kgscheduler_documents_total"])
	}
	if len(m.Hists["kgscheduler_chunk_extract_ms"]) != 2 {
		t.Fatalf("expected 2 histogram records, got %d", len(m.Hists["kgscheduler_chunk_extract_ms"]))
	}
}

func TestOtelMetrics_NilSafe(t *testing.T) {
	var o *OtelMetrics
	o.IncCounter("x", nil)
	o.ObserveHistogram("x", 1, nil)
}
