package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"FlowSentry/internal/alert"
	"FlowSentry/internal/detlog"
	"FlowSentry/internal/engine/feature"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/hybrid"
	"FlowSentry/internal/model"
	"FlowSentry/internal/sink"
	"FlowSentry/internal/vote"
)

// Scorer produces per-model attack probabilities for one feature vector.
// The ensemble satisfies this; tests substitute a stub.
type Scorer interface {
	Score(vec feature.Vector, selected []string) map[string]float64
}

// Options are the detection parameters the orchestrator runs with.
type Options struct {
	Threshold       float64
	VoteK           int
	SelectedModels  []string
	FlowTimeout     time.Duration
	ExpireInterval  time.Duration
	FinalizeWorkers int
	Verbose         bool
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Packets          uint64 `json:"packets"`
	FlowsCreated     uint64 `json:"flowsCreated"`
	FlowsFinalized   uint64 `json:"flowsFinalized"`
	ActiveFlows      int    `json:"activeFlows"`
	Attacks          uint64 `json:"attacks"`
	AlertsFired      uint64 `json:"alertsFired"`
	AlertsSuppressed uint64 `json:"alertsSuppressed"`
	SinkDelivered    uint64 `json:"sinkDelivered"`
	SinkDropped      uint64 `json:"sinkDropped"`
	SinkFailed       uint64 `json:"sinkFailed"`
}

// Pipeline wires the detection chain: packets enter the flow table through
// a single dispatch goroutine, a scanner periodically expires idle flows,
// and a worker pool runs feature extraction, ensemble scoring, voting,
// hybrid refinement, alerting, logging and export for each expired flow.
// A flow is removed from the table before its finalization begins, so it is
// finalized exactly once.
type Pipeline struct {
	opts       Options
	table      *flowtable.Table
	scorer     Scorer
	rules      *hybrid.Engine
	alerter    *alert.Manager
	logger     *detlog.Logger
	dispatcher *sink.Dispatcher

	packetCh   chan *model.PacketInfo
	finalizeCh chan *flowtable.Flow
	done       chan struct{}

	dispatchWg sync.WaitGroup
	scanWg     sync.WaitGroup
	finalizeWg sync.WaitGroup

	packets   atomic.Uint64
	created   atomic.Uint64
	finalized atomic.Uint64
	attacks   atomic.Uint64
}

// New assembles a pipeline. logger and dispatcher remain owned by the
// caller for shutdown ordering; the alerter and hybrid rules are internal.
func New(opts Options, table *flowtable.Table, scorer Scorer, alerter *alert.Manager,
	logger *detlog.Logger, dispatcher *sink.Dispatcher) *Pipeline {
	if opts.FinalizeWorkers <= 0 {
		opts.FinalizeWorkers = 2
	}
	if opts.ExpireInterval <= 0 {
		opts.ExpireInterval = time.Second
	}
	return &Pipeline{
		opts:       opts,
		table:      table,
		scorer:     scorer,
		rules:      hybrid.New(),
		alerter:    alerter,
		logger:     logger,
		dispatcher: dispatcher,
		packetCh:   make(chan *model.PacketInfo, 1000),
		finalizeCh: make(chan *flowtable.Flow, 256),
		done:       make(chan struct{}),
	}
}

// Input returns the channel packets are fed through.
func (p *Pipeline) Input() chan<- *model.PacketInfo {
	return p.packetCh
}

// Start launches the dispatch loop, the expiry scanner, and the finalize
// worker pool.
func (p *Pipeline) Start() {
	p.dispatchWg.Add(1)
	go p.dispatch()

	p.scanWg.Add(1)
	go p.scanner()

	p.finalizeWg.Add(p.opts.FinalizeWorkers)
	for i := 0; i < p.opts.FinalizeWorkers; i++ {
		go p.finalizeWorker()
	}
	log.Printf("Pipeline started: timeout=%s scan=%s workers=%d threshold=%.2f vote_k=%d",
		p.opts.FlowTimeout, p.opts.ExpireInterval, p.opts.FinalizeWorkers,
		p.opts.Threshold, p.opts.VoteK)
}

// Stop shuts the pipeline down in order: stop accepting packets, drain the
// dispatch loop, stop the scanner, flush every remaining flow through one
// final zero-timeout expire pass, then drain the finalize workers and the
// sink queue. The detection logger is left open for the caller to close.
func (p *Pipeline) Stop() {
	close(p.packetCh)
	p.dispatchWg.Wait()

	close(p.done)
	p.scanWg.Wait()

	for _, flow := range p.table.Expire(time.Now(), 0) {
		p.finalizeCh <- flow
	}
	close(p.finalizeCh)
	p.finalizeWg.Wait()

	p.dispatcher.Stop()
	log.Printf("Pipeline stopped: %d packets, %d flows finalized", p.packets.Load(), p.finalized.Load())
}

// dispatch is the single packet ingestion path: packets mutate the flow
// table strictly in arrival order.
func (p *Pipeline) dispatch() {
	defer p.dispatchWg.Done()
	for pkt := range p.packetCh {
		key, createdFlow, ok := p.table.Upsert(pkt)
		if !ok {
			continue
		}
		p.packets.Add(1)
		if createdFlow {
			p.created.Add(1)
			if p.opts.Verbose {
				log.Printf("[NEW FLOW] %s", key)
			}
		}
	}
}

// scanner periodically expires idle flows and hands them to the workers.
// Removal from the table happens inside Expire, before the hand-off, so no
// two workers ever see the same flow.
func (p *Pipeline) scanner() {
	defer p.scanWg.Done()
	ticker := time.NewTicker(p.opts.ExpireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, flow := range p.table.Expire(time.Now(), p.opts.FlowTimeout) {
				p.finalizeCh <- flow
			}
		case <-p.done:
			return
		}
	}
}

func (p *Pipeline) finalizeWorker() {
	defer p.finalizeWg.Done()
	for flow := range p.finalizeCh {
		p.finalize(flow)
	}
}

// finalize runs the full decision chain for one expired flow.
func (p *Pipeline) finalize(flow *flowtable.Flow) {
	now := time.Now()
	vec := feature.Extract(flow, now)

	probs := p.scorer.Score(vec, p.opts.SelectedModels)
	result := vote.Decide(probs, p.opts.Threshold, p.opts.VoteK)
	confidence := vote.MeanConfidence(probs)

	payload := model.DecisionPayload{
		Timestamp:          now.UTC(),
		SourceIP:           flow.Tuple.SrcIP.String(),
		DestinationIP:      flow.Tuple.DstIP.String(),
		SrcPort:            flow.Tuple.SrcPort,
		DstPort:            flow.Tuple.DstPort,
		Protocol:           flow.Tuple.ProtocolName(),
		FinalLabel:         result.FinalLabel,
		Confidence:         confidence,
		AttackVotes:        result.AttackVotes,
		TotalModels:        len(probs),
		Threshold:          result.Threshold,
		VoteK:              result.VoteK,
		AggMethod:          model.AggregationMethod,
		FlowDuration:       vec[feature.IdxFlowDuration],
		ModelProbabilities: probs,
	}
	payload = p.rules.Refine(payload)

	if payload.HybridLabel == model.HybridAttack {
		p.attacks.Add(1)
	}

	p.alerter.MaybeAlert(&payload)

	if err := p.logger.Append(&payload); err != nil {
		log.Printf("ERROR: failed to log detection: %v", err)
	}

	p.dispatcher.Enqueue(&payload)
	p.finalized.Add(1)

	if p.opts.Verbose {
		log.Printf("[FLOW RESULT] %s:%d -> %s:%d %s | ml=%s hybrid=%s severity=%s conf=%.4f votes=%d/%d dur=%.3fs syn=%d rst=%d psh=%d entropy=%.2f | %s",
			payload.SourceIP, payload.SrcPort, payload.DestinationIP, payload.DstPort,
			payload.Protocol, payload.FinalLabel, payload.HybridLabel, payload.Severity,
			payload.Confidence, payload.AttackVotes, payload.TotalModels, payload.FlowDuration,
			flow.SYNCount, flow.RSTCount, flow.PSHCount, flow.PayloadEntropy(),
			payload.HybridReason)
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	fired, suppressed := p.alerter.Stats()
	delivered, dropped, failed := p.dispatcher.Stats()
	return Stats{
		Packets:          p.packets.Load(),
		FlowsCreated:     p.created.Load(),
		FlowsFinalized:   p.finalized.Load(),
		ActiveFlows:      p.table.ActiveFlows(),
		Attacks:          p.attacks.Load(),
		AlertsFired:      fired,
		AlertsSuppressed: suppressed,
		SinkDelivered:    delivered,
		SinkDropped:      dropped,
		SinkFailed:       failed,
	}
}
