package detlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FlowSentry/internal/model"
)

func samplePayload() *model.DecisionPayload {
	return &model.DecisionPayload{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC),
		SourceIP:      "10.0.0.5",
		DestinationIP: "192.168.1.10",
		SrcPort:       4421,
		DstPort:       443,
		Protocol:      "TCP",
		FinalLabel:    model.LabelAttack,
		Confidence:    0.876543,
		AttackVotes:   2,
		TotalModels:   3,
		Threshold:     0.5,
		VoteK:         1,
		AggMethod:     model.AggregationMethod,
		HybridLabel:   model.HybridAttack,
		Severity:      model.SeverityHigh,
		HybridReason:  "high confidence multi-model attack",
		FlowDuration:  3.25,
		ModelProbabilities: map[string]float64{
			"logistic": 0.91,
		},
	}
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse log CSV: %v", err)
	}
	return records
}

func TestNewWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "decisions.csv")

	l, err := New(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if err := l.Append(samplePayload()); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	// Reopening an existing log must append without a second header.
	l, err = New(path)
	if err != nil {
		t.Fatalf("failed to reopen logger: %v", err)
	}
	if err := l.Append(samplePayload()); err != nil {
		t.Fatalf("failed to append after reopen: %v", err)
	}
	l.Close()

	records := readRecords(t, path)
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	for i, col := range Header {
		if records[0][i] != col {
			t.Fatalf("header column %d is %q, want %q", i, records[0][i], col)
		}
	}
}

func TestAppendRowContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")
	l, err := New(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	if err := l.Append(samplePayload()); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	l.Close()

	records := readRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}
	row := records[1]
	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, want %d", len(row), len(Header))
	}

	want := map[int]string{
		1:  "10.0.0.5",
		2:  "192.168.1.10",
		3:  "4421",
		4:  "443",
		5:  "TCP",
		6:  "ATTACK",
		7:  "0.876543",
		8:  "2",
		9:  "3",
		12: model.AggregationMethod,
		13: "ATTACK",
		14: "HIGH",
		16: "3.250000",
		17: `{"logistic":0.91}`,
	}
	for i, v := range want {
		if row[i] != v {
			t.Errorf("column %s = %q, want %q", Header[i], row[i], v)
		}
	}
}

func TestAppendConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")
	l, err := New(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	const workers = 4
	const perWorker = 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := l.Append(samplePayload()); err != nil {
					t.Errorf("append failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := l.Rows(); got != workers*perWorker {
		t.Errorf("expected %d rows recorded, got %d", workers*perWorker, got)
	}
	l.Close()

	records := readRecords(t, path)
	if len(records) != workers*perWorker+1 {
		t.Fatalf("expected %d records in file, got %d", workers*perWorker+1, len(records))
	}
	// Every row must be complete; a torn row would change the field count.
	for i, rec := range records {
		if len(rec) != len(Header) {
			t.Fatalf("record %d has %d fields, want %d", i, len(rec), len(Header))
		}
	}
}
