package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_decisions (
    Timestamp          DateTime64(6),
    SourceIP           String,
    DestinationIP      String,
    SrcPort            UInt16,
    DstPort            UInt16,
    Protocol           String,
    FinalLabel         String,
    Confidence         Float64,
    AttackVotes        UInt32,
    TotalModels        UInt32,
    Threshold          Float64,
    VoteK              UInt32,
    AggregationMethod  String,
    HybridLabel        String,
    Severity           String,
    HybridReason       String,
    FlowDuration       Float64,
    ModelProbabilities String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Timestamp, SourceIP);
`

// ClickHouseSink persists finalized decisions to a flow_decisions table for
// offline evaluation queries.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink connects to ClickHouse and ensures the decisions table
// exists.
func NewClickHouseSink(cfg config.ClickHouseSinkConfig) (*ClickHouseSink, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseSink{conn: conn}, nil
}

// Name identifies the sink in logs.
func (s *ClickHouseSink) Name() string { return "clickhouse" }

// Write inserts one decision row.
func (s *ClickHouseSink) Write(p *model.DecisionPayload) error {
	probs, err := json.Marshal(p.ModelProbabilities)
	if err != nil {
		probs = []byte("{}")
	}

	batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO flow_decisions")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(
		p.Timestamp,
		p.SourceIP,
		p.DestinationIP,
		p.SrcPort,
		p.DstPort,
		p.Protocol,
		string(p.FinalLabel),
		p.Confidence,
		uint32(p.AttackVotes),
		uint32(p.TotalModels),
		p.Threshold,
		uint32(p.VoteK),
		p.AggMethod,
		string(p.HybridLabel),
		string(p.Severity),
		p.HybridReason,
		p.FlowDuration,
		string(probs),
	); err != nil {
		return fmt.Errorf("failed to append decision to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close terminates the ClickHouse connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
