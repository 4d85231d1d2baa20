// Package priority implements the bandwidth-limited message selection of
// spec.md §4.3: effective priority = message.priority * channel.priority,
// sorted descending, approved against a token bucket sized by the
// configured quota, with a priority-bypass threshold for critical control
// traffic.
package priority

import "sort"

// BypassThreshold is the effective priority at or above which a message
// skips the bandwidth quota entirely (handshake/critical control traffic).
const BypassThreshold = 100_000

// Candidate is one message competing for this tick's bandwidth budget.
type Candidate struct {
	ChannelID  uint16
	MessageID  *uint16
	Priority   float32 // message.priority
	ChanPrio   float32 // channel.priority
	Size       int
	Reliable   bool
	Payload    []byte
}

func (c Candidate) effective() float32 { return c.Priority * c.ChanPrio }

// Sent is reported for every candidate that was actually put on the wire,
// so the delta-compression manager can track which baselines made it out
// (spec.md §4.3 Reporting).
type Sent struct {
	ChannelID uint16
	MessageID *uint16
}

// Manager is the token-bucket limiter. QuotaBytesPerSec == 0 disables the
// quota entirely (spec.md §6).
type Manager struct {
	quotaBytesPerSec float64
	burstBytes       float64
	tokens           float64
	lastRefill       float64 // seconds, monotonic-ish counter supplied by caller
	initialized      bool
}

func NewManager(quotaBytesPerSec uint32) *Manager {
	q := float64(quotaBytesPerSec)
	return &Manager{quotaBytesPerSec: q, burstBytes: q, tokens: q}
}

// refill advances the bucket to nowSeconds, a monotonically increasing
// clock supplied by the caller (pkg/session ties this to the frame clock).
func (m *Manager) refill(nowSeconds float64) {
	if !m.initialized {
		m.lastRefill = nowSeconds
		m.initialized = true
		return
	}
	elapsed := nowSeconds - m.lastRefill
	if elapsed <= 0 {
		return
	}
	m.tokens += elapsed * m.quotaBytesPerSec
	if m.tokens > m.burstBytes {
		m.tokens = m.burstBytes
	}
	m.lastRefill = nowSeconds
}

// Select sorts candidates by effective priority descending and approves as
// many as the token bucket allows, in order; bypass-threshold candidates
// are always approved and never charged against the bucket. Denied
// messages are returned so callers can bump the channel's accrued
// priority; the order of denied messages is preserved in descending
// priority order for a stable backlog.
func (m *Manager) Select(nowSeconds float64, candidates []Candidate) (approved []Candidate, denied []Candidate, sentReports []Sent) {
	quotaDisabled := m.quotaBytesPerSec <= 0
	if !quotaDisabled {
		m.refill(nowSeconds)
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].effective() > sorted[j].effective()
	})

	for _, c := range sorted {
		if quotaDisabled || c.effective() >= BypassThreshold {
			approved = append(approved, c)
			sentReports = append(sentReports, Sent{ChannelID: c.ChannelID, MessageID: c.MessageID})
			continue
		}
		if float64(c.Size) <= m.tokens {
			m.tokens -= float64(c.Size)
			approved = append(approved, c)
			sentReports = append(sentReports, Sent{ChannelID: c.ChannelID, MessageID: c.MessageID})
		} else {
			denied = append(denied, c)
		}
	}
	return approved, denied, sentReports
}

// AvailableTokens reports the current token balance, for metrics/tests.
func (m *Manager) AvailableTokens() float64 { return m.tokens }
