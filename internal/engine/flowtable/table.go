package flowtable

import (
	"hash/fnv"
	"sync"
	"time"

	"FlowSentry/internal/model"
)

const defaultShardCount = 256

// ProtocolFilter restricts which transport protocols the table admits.
type ProtocolFilter uint8

const (
	// FilterBoth admits TCP and UDP flows.
	FilterBoth ProtocolFilter = iota
	// FilterTCP admits only TCP flows.
	FilterTCP
	// FilterUDP admits only UDP flows.
	FilterUDP
)

func (pf ProtocolFilter) admits(proto uint8) bool {
	switch pf {
	case FilterTCP:
		return proto == model.ProtoTCP
	case FilterUDP:
		return proto == model.ProtoUDP
	default:
		return proto == model.ProtoTCP || proto == model.ProtoUDP
	}
}

// ParseProtocolFilter maps the config protocol string to a filter.
func ParseProtocolFilter(s string) ProtocolFilter {
	switch s {
	case "tcp":
		return FilterTCP
	case "udp":
		return FilterUDP
	default:
		return FilterBoth
	}
}

type shard struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// Table stores per-flow running state keyed by 5-tuple with direction
// normalization: packets with swapped endpoints map to the same flow. The
// map is sharded so the expiry scanner can run concurrently with packet
// ingestion.
type Table struct {
	shards     []*shard
	shardCount uint32
	filter     ProtocolFilter
}

// New creates a flow table with the given shard count (0 picks the default)
// and protocol filter.
func New(numShards uint32, filter ProtocolFilter) *Table {
	if numShards == 0 || numShards >= 32768 {
		numShards = defaultShardCount
	}
	t := &Table{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
		filter:     filter,
	}
	for i := range t.shards {
		t.shards[i] = &shard{flows: make(map[string]*Flow)}
	}
	return t
}

// canonicalKey returns the same map key for both orientations of a tuple,
// so forward and reverse packets land on the same shard entry.
func canonicalKey(ft model.FiveTuple) string {
	key := ft.Key()
	rev := ft.Reverse().Key()
	if rev < key {
		return rev
	}
	return key
}

func (t *Table) getShard(key string) *shard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Upsert inserts a new flow for an unseen 5-tuple or updates the existing
// one, classifying the packet as forward or backward by comparing its source
// port against the flow's recorded forward source port. It returns the
// canonical flow key and whether a new flow was created. Packets rejected by
// the protocol filter produce no side effect.
func (t *Table) Upsert(pkt *model.PacketInfo) (key string, created bool, ok bool) {
	if pkt == nil || pkt.FiveTuple.SrcIP == nil || pkt.FiveTuple.DstIP == nil {
		return "", false, false
	}
	if !t.filter.admits(pkt.FiveTuple.Protocol) {
		return "", false, false
	}

	key = canonicalKey(pkt.FiveTuple)
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, exists := s.flows[key]
	if !exists {
		s.flows[key] = newFlow(pkt)
		return key, true, true
	}

	forward := pkt.FiveTuple.SrcPort == flow.Tuple.SrcPort &&
		pkt.FiveTuple.SrcIP.Equal(flow.Tuple.SrcIP)
	flow.addPacket(pkt, forward)
	return key, false, true
}

// Expire removes and returns every flow idle for longer than timeout at the
// given instant. A flow is returned by exactly one Expire call over its
// lifetime; a zero timeout flushes everything.
func (t *Table) Expire(now time.Time, timeout time.Duration) []*Flow {
	var expired []*Flow
	for _, s := range t.shards {
		s.mu.Lock()
		for key, flow := range s.flows {
			if now.Sub(flow.LastSeen) > timeout || timeout <= 0 {
				expired = append(expired, flow)
				delete(s.flows, key)
			}
		}
		s.mu.Unlock()
	}
	return expired
}

// ActiveFlows returns the number of flows currently tracked.
func (t *Table) ActiveFlows() int {
	count := 0
	for _, s := range t.shards {
		s.mu.RLock()
		count += len(s.flows)
		s.mu.RUnlock()
	}
	return count
}

// Lookup returns the flow for a packet's tuple, if present. Intended for
// tests and metrics.
func (t *Table) Lookup(ft model.FiveTuple) (*Flow, bool) {
	key := canonicalKey(ft)
	s := t.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[key]
	return flow, ok
}
