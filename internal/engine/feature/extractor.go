package feature

import (
	"math"
	"time"

	"FlowSentry/internal/engine/flowtable"
)

// NumFeatures is the size of the locked realtime feature schema.
const NumFeatures = 12

// Vector is the fixed-order numeric feature vector consumed by the
// classifier ensemble. The index positions are a compatibility contract with
// the trained models: never reorder.
type Vector [NumFeatures]float64

// Feature vector indices, in training order.
const (
	IdxDestinationPort = iota
	IdxFlowDuration
	IdxTotalFwdPackets
	IdxTotalBwdPackets
	IdxTotalFwdBytes
	IdxTotalBwdBytes
	IdxFwdPktLenMin
	IdxFwdPktLenMean
	IdxPktLenStd
	IdxFlowIATMean
	IdxFwdIATMean
	IdxDownUpRatio
)

// Names lists the feature columns in training order. It is validated against
// the fitted scaler's declared column order at startup.
var Names = [NumFeatures]string{
	"Destination Port",
	"Flow Duration",
	"Total Fwd Packets",
	"Total Backward Packets",
	"Total Length of Fwd Packets",
	"Total Length of Bwd Packets",
	"Fwd Packet Length Min",
	"Fwd Packet Length Mean",
	"Packet Length Std",
	"Flow IAT Mean",
	"Fwd IAT Mean",
	"Down/Up Ratio",
}

// durationEpsilon floors the flow duration to keep downstream rate features
// finite for single-packet flows.
const durationEpsilon = 1e-6

// Extract derives the feature vector from a flow's accumulated state at the
// given instant. It is a pure read: the flow is not mutated. Aggregates with
// insufficient samples resolve to 0, never NaN.
func Extract(f *flowtable.Flow, now time.Time) Vector {
	var v Vector

	duration := now.Sub(f.CreatedAt).Seconds()
	if duration < durationEpsilon {
		duration = durationEpsilon
	}

	fwdLengths := f.FwdLengths()
	bwdLengths := f.BwdLengths()
	allLengths := append(append([]float64{}, fwdLengths...), bwdLengths...)

	v[IdxDestinationPort] = float64(f.Tuple.DstPort)
	v[IdxFlowDuration] = duration
	v[IdxTotalFwdPackets] = float64(f.FwdPackets)
	v[IdxTotalBwdPackets] = float64(f.BwdPackets)
	v[IdxTotalFwdBytes] = float64(f.FwdBytes)
	v[IdxTotalBwdBytes] = float64(f.BwdBytes)
	v[IdxFwdPktLenMin] = minOf(fwdLengths)
	v[IdxFwdPktLenMean] = mean(fwdLengths)
	v[IdxPktLenStd] = populationStd(allLengths)
	v[IdxFlowIATMean] = mean(interArrivals(f.Arrivals()))
	v[IdxFwdIATMean] = mean(interArrivals(f.FwdArrivals()))

	if f.FwdPackets > 0 {
		v[IdxDownUpRatio] = float64(f.BwdPackets) / float64(f.FwdPackets)
	}

	return v
}

// interArrivals converts chronologically ordered timestamps to successive
// gaps in seconds. Fewer than two samples yield no gaps.
func interArrivals(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	iats := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		iats = append(iats, times[i].Sub(times[i-1]).Seconds())
	}
	return iats
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// populationStd is the population (not sample) standard deviation; 0 or 1
// samples yield 0.
func populationStd(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	m := mean(samples)
	variance := 0.0
	for _, s := range samples {
		d := s - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(samples)))
}

func minOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	min := samples[0]
	for _, s := range samples[1:] {
		if s < min {
			min = s
		}
	}
	return min
}
