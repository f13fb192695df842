package model

import (
	"net"
	"strconv"
	"time"
)

// Transport protocol numbers handled by the detector.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FiveTuple represents the 5-tuple of a network flow.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // e.g., TCP, UDP
}

// Key returns the canonical string key for this tuple orientation.
func (ft FiveTuple) Key() string {
	return ft.SrcIP.String() + "-" + ft.DstIP.String() + "-" +
		strconv.Itoa(int(ft.SrcPort)) + "-" + strconv.Itoa(int(ft.DstPort)) + "-" +
		strconv.Itoa(int(ft.Protocol))
}

// Reverse returns the tuple with source and destination swapped.
func (ft FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		SrcIP:    ft.DstIP,
		DstIP:    ft.SrcIP,
		SrcPort:  ft.DstPort,
		DstPort:  ft.SrcPort,
		Protocol: ft.Protocol,
	}
}

// ProtocolName returns the transport protocol as a display string.
func (ft FiveTuple) ProtocolName() string {
	switch ft.Protocol {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	default:
		return strconv.Itoa(int(ft.Protocol))
	}
}

// TCPFlags holds the subset of TCP flags the feature pipeline cares about.
type TCPFlags struct {
	SYN bool
	FIN bool
	RST bool
	PSH bool
	ACK bool
}

// PacketInfo holds the metadata extracted from a single captured packet.
// TTL and window size are optional: absent fields are excluded from flow
// aggregates instead of failing extraction.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	TCPFlags  TCPFlags
	TTL       uint8
	HasTTL    bool
	Window    uint16
	HasWindow bool
	Payload   []byte
}

// Label is the binary ML verdict for a flow.
type Label string

const (
	LabelBenign Label = "BENIGN"
	LabelAttack Label = "ATTACK"
)

// HybridLabel is the refined three-way verdict.
type HybridLabel string

const (
	HybridBenign     HybridLabel = "BENIGN"
	HybridSuspicious HybridLabel = "SUSPICIOUS"
	HybridAttack     HybridLabel = "ATTACK"
)

// Severity is the alerting tier attached to a hybrid decision.
type Severity string

const (
	SeverityBenign Severity = "BENIGN"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AggregationMethod identifies the ensemble aggregation strategy in logs
// and exported payloads.
const AggregationMethod = "global-threshold-voting"

// DecisionPayload is the immutable record produced once per finalized flow.
// JSON field names are the export contract with the backend sink.
type DecisionPayload struct {
	Timestamp time.Time `json:"timestamp"`

	SourceIP      string `json:"sourceIP"`
	DestinationIP string `json:"destinationIP"`
	SrcPort       uint16 `json:"srcPort"`
	DstPort       uint16 `json:"dstPort"`
	Protocol      string `json:"protocol"`

	FinalLabel Label   `json:"finalLabel"`
	Confidence float64 `json:"confidence"`

	AttackVotes int     `json:"attackVotes"`
	TotalModels int     `json:"totalModels"`
	Threshold   float64 `json:"threshold"`
	VoteK       int     `json:"voteK"`
	AggMethod   string  `json:"aggregationMethod"`

	HybridLabel  HybridLabel `json:"hybridLabel"`
	Severity     Severity    `json:"severity"`
	HybridReason string      `json:"hybridReason"`

	FlowDuration float64 `json:"flowDuration"`

	ModelProbabilities map[string]float64 `json:"modelProbabilities"`
}
