package hybrid

import (
	"net"

	"FlowSentry/internal/model"
)

// Well-known discovery services that generate chatty local traffic the
// ensemble tends to flag.
var discoveryPorts = map[uint16]bool{
	1900: true, // SSDP
	5353: true, // mDNS
	137:  true, // NetBIOS name service
	138:  true, // NetBIOS datagram service
}

// outcome is the refined verdict a matching rule assigns.
type outcome struct {
	label    model.HybridLabel
	severity model.Severity
	reason   string
}

// rule pairs a predicate with its outcome. Rules are evaluated in order and
// the first match wins, which makes the precedence explicit and each rule
// independently testable.
type rule struct {
	name    string
	matches func(p *model.DecisionPayload) bool
	result  outcome
}

// Engine refines the binary ML label into BENIGN / SUSPICIOUS / ATTACK with
// a severity and a human-readable reason. The chain only ever downgrades or
// contextualizes ATTACK findings; a BENIGN ML decision is never upgraded.
type Engine struct {
	rules []rule
}

// New builds the ordered rule chain.
func New() *Engine {
	return &Engine{rules: []rule{
		// Hard safety rules apply regardless of the ML label.
		{
			name: "non-transport protocol",
			matches: func(p *model.DecisionPayload) bool {
				return p.Protocol != "TCP" && p.Protocol != "UDP"
			},
			result: outcome{model.HybridBenign, model.SeverityLow, "non-TCP/UDP protocol out of scope"},
		},
		{
			name: "multicast destination",
			matches: func(p *model.DecisionPayload) bool {
				return isIPv4Multicast(p.DestinationIP)
			},
			result: outcome{model.HybridBenign, model.SeverityLow, "multicast discovery traffic"},
		},
		{
			name: "discovery service port",
			matches: func(p *model.DecisionPayload) bool {
				return discoveryPorts[p.DstPort]
			},
			result: outcome{model.HybridBenign, model.SeverityLow, "well-known discovery service port"},
		},
		// The ensemble stays authoritative for negatives.
		{
			name: "ml benign",
			matches: func(p *model.DecisionPayload) bool {
				return p.FinalLabel == model.LabelBenign
			},
			result: outcome{model.HybridBenign, model.SeverityBenign, "low risk traffic"},
		},
		// Downgrade ladder for ATTACK findings, strongest suppression first.
		{
			name: "low confidence",
			matches: func(p *model.DecisionPayload) bool {
				return p.Confidence < 0.60
			},
			result: outcome{model.HybridSuspicious, model.SeverityLow, "very low ensemble confidence"},
		},
		{
			name: "weak agreement",
			matches: func(p *model.DecisionPayload) bool {
				return p.AttackVotes < p.VoteK+1
			},
			result: outcome{model.HybridSuspicious, model.SeverityMedium, "weak multi-model agreement"},
		},
		{
			name: "trusted service port",
			matches: func(p *model.DecisionPayload) bool {
				return (p.DstPort == 53 || p.DstPort == 443) && p.Confidence < 0.75
			},
			result: outcome{model.HybridSuspicious, model.SeverityLow, "likely benign DNS/HTTPS traffic"},
		},
		{
			name: "short-lived flow",
			matches: func(p *model.DecisionPayload) bool {
				return p.FlowDuration < 2.0 && p.Confidence < 0.75
			},
			result: outcome{model.HybridBenign, model.SeverityLow, "short-lived low-volume flow"},
		},
		// Nothing suppressed the finding.
		{
			name:    "confirmed attack",
			matches: func(p *model.DecisionPayload) bool { return true },
			result:  outcome{model.HybridAttack, model.SeverityHigh, "high confidence multi-model attack"},
		},
	}}
}

// Refine evaluates the rule chain against a decision payload and returns a
// copy with the hybrid label, severity and reason set. It is a pure one-shot
// classifier: re-running it on its own output yields the same verdict.
func (e *Engine) Refine(p model.DecisionPayload) model.DecisionPayload {
	for _, r := range e.rules {
		if r.matches(&p) {
			p.HybridLabel = r.result.label
			p.Severity = r.result.severity
			p.HybridReason = r.result.reason
			return p
		}
	}
	// Unreachable: the final rule matches everything.
	return p
}

func isIPv4Multicast(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	// 224.0.0.0/4
	return v4 != nil && v4[0] >= 224 && v4[0] <= 239
}
