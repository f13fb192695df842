package detlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"FlowSentry/internal/model"
)

// Header is the detection log column order. It is a compatibility contract
// with the evaluation tooling: never reorder.
var Header = []string{
	"timestamp",
	"source_ip",
	"destination_ip",
	"src_port",
	"dst_port",
	"protocol",
	"final_label",
	"confidence",
	"attack_votes",
	"total_models",
	"threshold",
	"vote_k",
	"aggregation_method",
	"hybrid_label",
	"severity",
	"hybrid_reason",
	"flow_duration",
	"model_probabilities",
}

// Logger appends one CSV row per finalized flow. It is append-only and
// guarded by a mutex so concurrent finalization workers never interleave
// partial rows. The header is written once when the file is created.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	rows   uint64
}

// New opens (or creates) the detection log at path, writing the header row
// if the file is new or empty.
func New(path string) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}

	l := &Logger{file: file, writer: csv.NewWriter(file)}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat detection log: %w", err)
	}
	if stat.Size() == 0 {
		if err := l.writer.Write(Header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write log header: %w", err)
		}
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to flush log header: %w", err)
		}
	}
	return l, nil
}

// Append writes one row for a finalized flow. Every column is written even
// when empty so the column order holds for the file's lifetime.
func (l *Logger) Append(p *model.DecisionPayload) error {
	probs, err := json.Marshal(p.ModelProbabilities)
	if err != nil {
		// A probability map always marshals; keep the row anyway.
		probs = []byte("{}")
	}

	row := []string{
		p.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		p.SourceIP,
		p.DestinationIP,
		strconv.Itoa(int(p.SrcPort)),
		strconv.Itoa(int(p.DstPort)),
		p.Protocol,
		string(p.FinalLabel),
		strconv.FormatFloat(p.Confidence, 'f', 6, 64),
		strconv.Itoa(p.AttackVotes),
		strconv.Itoa(p.TotalModels),
		strconv.FormatFloat(p.Threshold, 'f', -1, 64),
		strconv.Itoa(p.VoteK),
		p.AggMethod,
		string(p.HybridLabel),
		string(p.Severity),
		p.HybridReason,
		strconv.FormatFloat(p.FlowDuration, 'f', 6, 64),
		string(probs),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("failed to append detection row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush detection row: %w", err)
	}
	l.rows++
	return nil
}

// Rows returns the number of rows appended by this logger instance.
func (l *Logger) Rows() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
