package vote

import (
	"sort"

	"FlowSentry/internal/model"
)

// Result is the outcome of threshold voting at a single threshold.
type Result struct {
	FinalLabel       model.Label
	AttackVotes      int
	TriggeredModels  []string
	PerModelDecision map[string]int
	Threshold        float64
	VoteK            int
}

// Decide converts per-model probabilities into a binary label: a model
// votes ATTACK when its probability reaches the threshold, and the final
// label is ATTACK when at least voteK models vote. An empty probability map
// yields a deterministic BENIGN result; voteK below 1 defaults to 1
// (any-model-triggers semantics).
func Decide(perModelProbs map[string]float64, threshold float64, voteK int) Result {
	if voteK < 1 {
		voteK = 1
	}

	decisions := make(map[string]int, len(perModelProbs))
	var triggered []string
	for name, prob := range perModelProbs {
		if prob >= threshold {
			decisions[name] = 1
			triggered = append(triggered, name)
		} else {
			decisions[name] = 0
		}
	}
	sort.Strings(triggered)

	finalLabel := model.LabelBenign
	if len(triggered) >= voteK {
		finalLabel = model.LabelAttack
	}

	return Result{
		FinalLabel:       finalLabel,
		AttackVotes:      len(triggered),
		TriggeredModels:  triggered,
		PerModelDecision: decisions,
		Threshold:        threshold,
		VoteK:            voteK,
	}
}

// DecideMulti evaluates the same probabilities at several thresholds,
// returning one voting result per threshold. This is the offline analysis
// mode; the live path uses Decide with a single global threshold.
func DecideMulti(perModelProbs map[string]float64, thresholds []float64, voteK int) map[float64]Result {
	results := make(map[float64]Result, len(thresholds))
	for _, th := range thresholds {
		results[th] = Decide(perModelProbs, th, voteK)
	}
	return results
}

// MeanConfidence is the mean probability across all scored models, 0 when
// no model produced a probability.
func MeanConfidence(perModelProbs map[string]float64) float64 {
	if len(perModelProbs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range perModelProbs {
		sum += p
	}
	return sum / float64(len(perModelProbs))
}
