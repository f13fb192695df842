package hybrid

import (
	"testing"

	"FlowSentry/internal/model"
	"FlowSentry/internal/vote"
)

// attackPayload is a baseline ATTACK decision that nothing in the rule chain
// suppresses: strong confidence, broad agreement, long-lived flow on an
// unremarkable port.
func attackPayload() model.DecisionPayload {
	return model.DecisionPayload{
		SourceIP:      "10.0.0.5",
		DestinationIP: "192.168.1.10",
		SrcPort:       4421,
		DstPort:       8080,
		Protocol:      "TCP",
		FinalLabel:    model.LabelAttack,
		Confidence:    0.92,
		AttackVotes:   3,
		TotalModels:   3,
		Threshold:     0.5,
		VoteK:         1,
		FlowDuration:  12.5,
	}
}

func checkVerdict(t *testing.T, p model.DecisionPayload, label model.HybridLabel, severity model.Severity) {
	t.Helper()
	got := New().Refine(p)
	if got.HybridLabel != label || got.Severity != severity {
		t.Fatalf("got %s/%s (%s), want %s/%s",
			got.HybridLabel, got.Severity, got.HybridReason, label, severity)
	}
	if got.HybridReason == "" {
		t.Errorf("refined payload is missing a reason")
	}
}

func TestRefineConfirmedAttack(t *testing.T) {
	checkVerdict(t, attackPayload(), model.HybridAttack, model.SeverityHigh)
}

func TestRefineMLBenignStaysBenign(t *testing.T) {
	p := attackPayload()
	p.FinalLabel = model.LabelBenign
	p.Confidence = 0.1
	p.AttackVotes = 0
	checkVerdict(t, p, model.HybridBenign, model.SeverityBenign)
}

func TestRefineLowConfidenceDowngrades(t *testing.T) {
	p := attackPayload()
	p.Confidence = 0.55
	checkVerdict(t, p, model.HybridSuspicious, model.SeverityLow)
}

func TestRefineWeakAgreementDowngrades(t *testing.T) {
	p := attackPayload()
	p.AttackVotes = p.VoteK // bare minimum to trigger ATTACK
	checkVerdict(t, p, model.HybridSuspicious, model.SeverityMedium)
}

func TestRefineTrustedServicePort(t *testing.T) {
	p := attackPayload()
	p.DstPort = 443
	p.Confidence = 0.70
	checkVerdict(t, p, model.HybridSuspicious, model.SeverityLow)

	// High confidence on the same port is not suppressed.
	p.Confidence = 0.92
	checkVerdict(t, p, model.HybridAttack, model.SeverityHigh)
}

func TestRefineShortLivedLowConfidenceFlow(t *testing.T) {
	p := attackPayload()
	p.FlowDuration = 0.8
	p.Confidence = 0.70
	checkVerdict(t, p, model.HybridBenign, model.SeverityLow)
}

func TestRefineMulticastOverridesMLVerdict(t *testing.T) {
	p := attackPayload()
	p.DestinationIP = "239.255.255.250"
	checkVerdict(t, p, model.HybridBenign, model.SeverityLow)
}

func TestRefineDiscoveryPortOverridesMLVerdict(t *testing.T) {
	for _, port := range []uint16{1900, 5353, 137, 138} {
		p := attackPayload()
		p.DstPort = port
		p.Protocol = "UDP"
		checkVerdict(t, p, model.HybridBenign, model.SeverityLow)
	}
}

func TestRefineNonTransportProtocol(t *testing.T) {
	p := attackPayload()
	p.Protocol = "47"
	checkVerdict(t, p, model.HybridBenign, model.SeverityLow)
}

func TestRefineIsIdempotent(t *testing.T) {
	e := New()
	cases := []model.DecisionPayload{attackPayload()}
	low := attackPayload()
	low.Confidence = 0.4
	cases = append(cases, low)

	for _, p := range cases {
		once := e.Refine(p)
		twice := e.Refine(once)
		if once.HybridLabel != twice.HybridLabel || once.Severity != twice.Severity || once.HybridReason != twice.HybridReason {
			t.Fatalf("refinement changed verdict on second pass: %s/%s vs %s/%s",
				once.HybridLabel, once.Severity, twice.HybridLabel, twice.Severity)
		}
	}
}

// TestRefineVotedDecisions runs voting and refinement together the way the
// finalization chain does, with hand-checked probability sets.
func TestRefineVotedDecisions(t *testing.T) {
	cases := []struct {
		name         string
		probs        map[string]float64
		dstPort      uint16
		flowDuration float64
		wantLabel    model.HybridLabel
		wantSeverity model.Severity
	}{
		{
			name:         "unanimous high confidence attack",
			probs:        map[string]float64{"a": 0.9, "b": 0.8, "c": 0.85},
			dstPort:      4444,
			flowDuration: 10,
			wantLabel:    model.HybridAttack,
			wantSeverity: model.SeverityHigh,
		},
		{
			name:         "votes carried by marginal probabilities",
			probs:        map[string]float64{"a": 0.55, "b": 0.52, "c": 0.2},
			dstPort:      4444,
			flowDuration: 10,
			wantLabel:    model.HybridSuspicious,
			wantSeverity: model.SeverityLow,
		},
		{
			name:         "moderate confidence attack on DNS port",
			probs:        map[string]float64{"a": 0.65, "b": 0.65, "c": 0.65},
			dstPort:      53,
			flowDuration: 10,
			wantLabel:    model.HybridSuspicious,
			wantSeverity: model.SeverityLow,
		},
		{
			name:         "short-lived moderate confidence attack",
			probs:        map[string]float64{"a": 0.7, "b": 0.7, "c": 0.7},
			dstPort:      4444,
			flowDuration: 1.2,
			wantLabel:    model.HybridBenign,
			wantSeverity: model.SeverityLow,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := vote.Decide(tc.probs, 0.5, 1)
			p := model.DecisionPayload{
				SourceIP:      "10.0.0.5",
				DestinationIP: "192.168.1.10",
				DstPort:       tc.dstPort,
				Protocol:      "TCP",
				FinalLabel:    res.FinalLabel,
				Confidence:    vote.MeanConfidence(tc.probs),
				AttackVotes:   res.AttackVotes,
				TotalModels:   len(tc.probs),
				Threshold:     res.Threshold,
				VoteK:         res.VoteK,
				FlowDuration:  tc.flowDuration,
			}
			checkVerdict(t, p, tc.wantLabel, tc.wantSeverity)
		})
	}
}

func TestIsIPv4Multicast(t *testing.T) {
	cases := map[string]bool{
		"224.0.0.1":       true,
		"239.255.255.250": true,
		"223.255.255.255": false,
		"240.0.0.1":       false,
		"192.168.1.1":     false,
		"not-an-ip":       false,
	}
	for addr, want := range cases {
		if got := isIPv4Multicast(addr); got != want {
			t.Errorf("isIPv4Multicast(%q) = %t, want %t", addr, got, want)
		}
	}
}
