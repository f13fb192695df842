package flowtable

import (
	"math"
	"time"

	"FlowSentry/internal/model"
)

// maxSamples bounds the per-flow packet history. Oldest samples are evicted
// first, so aggregates over very long flows have bounded accuracy.
const maxSamples = 500

// maxPayloadSample bounds how many payload bytes of a single packet feed the
// entropy accumulator.
const maxPayloadSample = 1024

// ring is a fixed-capacity sample buffer that evicts the oldest entry once
// full.
type ring[T any] struct {
	buf   []T
	head  int
	count int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// values returns the retained samples in insertion order.
func (r *ring[T]) values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring[T]) len() int { return r.count }

// Flow is the mutable per-flow aggregate owned by the Table until
// finalization. The stored tuple is the forward orientation (first packet
// seen); reverse-direction packets are accounted as backward traffic.
type Flow struct {
	Tuple     model.FiveTuple
	CreatedAt time.Time
	LastSeen  time.Time

	FwdPackets int
	BwdPackets int
	FwdBytes   int
	BwdBytes   int

	fwdLengths ring[float64]
	bwdLengths ring[float64]
	arrivals   ring[time.Time]
	fwdTimes   ring[time.Time]

	SYNCount int
	RSTCount int
	PSHCount int

	payloadFreq  [256]uint32
	payloadTotal int
}

func newFlow(pkt *model.PacketInfo) *Flow {
	f := &Flow{
		Tuple:      pkt.FiveTuple,
		CreatedAt:  pkt.Timestamp,
		LastSeen:   pkt.Timestamp,
		fwdLengths: newRing[float64](maxSamples),
		bwdLengths: newRing[float64](maxSamples),
		arrivals:   newRing[time.Time](maxSamples),
		fwdTimes:   newRing[time.Time](maxSamples),
	}
	f.addPacket(pkt, true)
	return f
}

// addPacket folds one packet into the aggregate. Counters only ever grow
// until the flow is finalized.
func (f *Flow) addPacket(pkt *model.PacketInfo, forward bool) {
	if pkt.Timestamp.After(f.LastSeen) {
		f.LastSeen = pkt.Timestamp
	}
	f.arrivals.push(pkt.Timestamp)

	if forward {
		f.FwdPackets++
		f.FwdBytes += pkt.Length
		f.fwdLengths.push(float64(pkt.Length))
		f.fwdTimes.push(pkt.Timestamp)
	} else {
		f.BwdPackets++
		f.BwdBytes += pkt.Length
		f.bwdLengths.push(float64(pkt.Length))
	}

	if pkt.FiveTuple.Protocol == model.ProtoTCP {
		if pkt.TCPFlags.SYN {
			f.SYNCount++
		}
		if pkt.TCPFlags.RST {
			f.RSTCount++
		}
		if pkt.TCPFlags.PSH {
			f.PSHCount++
		}
	}

	payload := pkt.Payload
	if len(payload) > maxPayloadSample {
		payload = payload[:maxPayloadSample]
	}
	for _, b := range payload {
		f.payloadFreq[b]++
	}
	f.payloadTotal += len(payload)
}

// FwdLengths returns the retained forward packet lengths in arrival order.
func (f *Flow) FwdLengths() []float64 { return f.fwdLengths.values() }

// BwdLengths returns the retained backward packet lengths in arrival order.
func (f *Flow) BwdLengths() []float64 { return f.bwdLengths.values() }

// Arrivals returns the retained arrival timestamps (both directions) in
// chronological order.
func (f *Flow) Arrivals() []time.Time { return f.arrivals.values() }

// FwdArrivals returns the retained forward-direction arrival timestamps.
func (f *Flow) FwdArrivals() []time.Time { return f.fwdTimes.values() }

// PayloadEntropy returns the Shannon entropy (bits per byte, 0..8) of the
// sampled payload bytes across the whole flow.
func (f *Flow) PayloadEntropy() float64 {
	if f.payloadTotal == 0 {
		return 0
	}
	ent := 0.0
	total := float64(f.payloadTotal)
	for _, n := range f.payloadFreq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		ent -= p * math.Log2(p)
	}
	return ent
}
