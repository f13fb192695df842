package alert

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"FlowSentry/internal/model"
)

// DefaultCooldown is the shared suppression window between audible alerts.
const DefaultCooldown = 10 * time.Second

// Manager emits an operator-facing alert for HIGH severity ATTACK decisions
// only. A single cooldown window is shared across all alerts: a qualifying
// event inside the window is suppressed entirely, not queued. Safe for
// concurrent use by multiple finalization workers.
type Manager struct {
	mu        sync.Mutex
	cooldown  time.Duration
	lastAlert time.Time
	notifier  model.Notifier

	fired      uint64
	suppressed uint64

	now func() time.Time
}

// New creates an alert manager. notifier may be nil; cooldown <= 0 selects
// the default window.
func New(cooldown time.Duration, notifier model.Notifier) *Manager {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Manager{
		cooldown: cooldown,
		notifier: notifier,
		now:      time.Now,
	}
}

// MaybeAlert fires the alert when the payload qualifies and the cooldown
// window has elapsed. It reports whether an alert was emitted. Failures in
// the notification side effects are logged, never propagated.
func (m *Manager) MaybeAlert(p *model.DecisionPayload) bool {
	if p.HybridLabel != model.HybridAttack || p.Severity != model.SeverityHigh {
		return false
	}

	m.mu.Lock()
	now := m.now()
	if !m.lastAlert.IsZero() && now.Sub(m.lastAlert) < m.cooldown {
		m.suppressed++
		m.mu.Unlock()
		return false
	}
	m.lastAlert = now
	m.fired++
	m.mu.Unlock()

	m.emit(p)
	return true
}

// Stats returns the number of alerts fired and suppressed by the cooldown.
func (m *Manager) Stats() (fired, suppressed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired, m.suppressed
}

func (m *Manager) emit(p *model.DecisionPayload) {
	banner := fmt.Sprintf(
		"HIGH SEVERITY ATTACK DETECTED\n"+
			"  Source IP        : %s\n"+
			"  Destination IP   : %s\n"+
			"  Destination Port : %d\n"+
			"  Confidence       : %.4f\n"+
			"  Attack Votes     : %d/%d\n"+
			"  Reason           : %s",
		p.SourceIP, p.DestinationIP, p.DstPort, p.Confidence,
		p.AttackVotes, p.TotalModels, p.HybridReason)

	log.Printf("ALERT: %s", banner)
	bell()

	if m.notifier != nil {
		// Email delivery is slow; never hold up a finalization worker.
		go func() {
			subject := fmt.Sprintf("FlowSentry alert: attack from %s", p.SourceIP)
			if err := m.notifier.Send(subject, banner); err != nil {
				log.Printf("ERROR: failed to send alert notification: %v", err)
			}
		}()
	}
}

// bell rings the terminal bell. Platforms without an audible bell simply
// ignore the control character; any write failure is irrelevant here.
func bell() {
	os.Stdout.WriteString("\a")
}
