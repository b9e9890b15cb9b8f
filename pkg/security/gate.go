package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/verdantlabs/grove/pkg/log"
	"github.com/verdantlabs/grove/pkg/types"
)

// Defaults applied when Config fields are zero.
const (
	DefaultTrustThreshold = 70.0
	DefaultScanWindow     = 60 * time.Second
	DefaultSessionTimeout = 5 * time.Minute

	// MaxTrust is the score assigned at registration and after a rescan.
	MaxTrust = 100.0
)

// Config holds the gate's tunables.
type Config struct {
	// TrustThreshold is the score a node must exceed to stay eligible.
	TrustThreshold float64
	// ScanWindow is how long a scan keeps a node fresh. A node whose last
	// scan is older than this is excluded even at full trust.
	ScanWindow time.Duration
	// SessionTimeout is the default lifetime for issued sessions.
	SessionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TrustThreshold == 0 {
		c.TrustThreshold = DefaultTrustThreshold
	}
	if c.ScanWindow == 0 {
		c.ScanWindow = DefaultScanWindow
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	return c
}

// Session is a caller's time-bounded credential. It is valid while
// now - CreatedAt < Timeout; once expired every allocation call carrying
// it fails fast without touching the trees.
type Session struct {
	Token     string
	CreatedAt time.Time
	Timeout   time.Duration
}

// nodeTrust is the gate's per-node ledger entry. Trust decays only
// through RecordEvent and resets only through a rescan.
type nodeTrust struct {
	score       float64
	threatLevel int
	lastScan    time.Time
}

type trustKey struct {
	kind  types.ResourceKind
	level int
	node  int
}

// Gate validates sessions and tracks per-node trust. Exclusion is soft:
// a distrusted node stays in the tree but is filtered out of candidate
// search until the next rescan.
type Gate struct {
	cfg      Config
	mu       sync.RWMutex
	sessions map[string]Session
	trust    map[trustKey]*nodeTrust
	now      func() time.Time
}

// NewGate creates a gate with the given config, zero fields defaulted.
func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]Session),
		trust:    make(map[trustKey]*nodeTrust),
		now:      time.Now,
	}
}

// SetClock replaces the gate's time source. Tests use this to drive
// session expiry and scan staleness with simulated time.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// RegisterNodes seeds the trust ledger for one tree's worth of nodes at
// full trust with a fresh scan. Called once per tree at construction.
func (g *Gate) RegisterNodes(kind types.ResourceKind, depth, branches int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for level := 0; level < depth; level++ {
		for node := 0; node < branches; node++ {
			g.trust[trustKey{kind, level, node}] = &nodeTrust{
				score:    MaxTrust,
				lastScan: now,
			}
		}
	}
}

// IssueSession creates a session with the given timeout (the configured
// default when zero) and records it for later validation.
func (g *Gate) IssueSession(timeout time.Duration) (Session, error) {
	if timeout == 0 {
		timeout = g.cfg.SessionTimeout
	}

	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return Session{}, fmt.Errorf("failed to generate session token: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s := Session{
		Token:     hex.EncodeToString(bytes),
		CreatedAt: g.now(),
		Timeout:   timeout,
	}
	g.sessions[s.Token] = s
	return s, nil
}

// ValidateSession checks that the session was issued here and has not
// timed out. Expiry is judged against the recorded session, so a caller
// cannot extend its life by mutating the copy it holds.
func (g *Gate) ValidateSession(s Session) error {
	if s.Token == "" {
		return fmt.Errorf("%w: empty token", types.ErrSessionExpired)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	recorded, exists := g.sessions[s.Token]
	if !exists {
		return fmt.Errorf("%w: unknown token", types.ErrSessionExpired)
	}
	if g.now().Sub(recorded.CreatedAt) >= recorded.Timeout {
		return fmt.Errorf("%w: token issued %s ago, timeout %s",
			types.ErrSessionExpired, g.now().Sub(recorded.CreatedAt), recorded.Timeout)
	}
	return nil
}

// RevokeSession removes a session immediately.
func (g *Gate) RevokeSession(token string) {
	g.mu.Lock()
	delete(g.sessions, token)
	g.mu.Unlock()
}

// CleanupExpiredSessions drops sessions past their timeout and returns
// how many were removed.
func (g *Gate) CleanupExpiredSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for token, s := range g.sessions {
		if now.Sub(s.CreatedAt) >= s.Timeout {
			delete(g.sessions, token)
			removed++
		}
	}
	return removed
}

// ValidateNode reports whether a node is eligible for placement: trust
// above the threshold and a scan within the freshness window.
func (g *Gate) ValidateNode(kind types.ResourceKind, level, node int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nt, exists := g.trust[trustKey{kind, level, node}]
	if !exists {
		return false
	}
	if nt.score <= g.cfg.TrustThreshold {
		return false
	}
	return g.now().Sub(nt.lastScan) <= g.cfg.ScanWindow
}

// severityCost maps an event grade to trust lost.
func severityCost(severity types.Severity) float64 {
	switch severity {
	case types.SeverityLow:
		return 5
	case types.SeverityMedium:
		return 15
	case types.SeverityHigh:
		return 35
	case types.SeverityCritical:
		return 100
	default:
		return 15
	}
}

// RecordEvent lowers a node's trust by the severity cost and raises its
// threat level. Trust never drops below zero and never recovers here;
// only a rescan restores it.
func (g *Gate) RecordEvent(kind types.ResourceKind, level, node int, severity types.Severity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nt, exists := g.trust[trustKey{kind, level, node}]
	if !exists {
		return
	}
	nt.score -= severityCost(severity)
	if nt.score < 0 {
		nt.score = 0
	}
	nt.threatLevel++

	logger := log.WithComponent("security")
	logger.Warn().
		Str("kind", string(kind)).
		Int("level", level).
		Int("node", node).
		Str("severity", string(severity)).
		Float64("trust", nt.score).
		Msg("security event recorded")
}

// Rescan restores one node to full trust, clears its threat level, and
// refreshes its scan time.
func (g *Gate) Rescan(kind types.ResourceKind, level, node int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rescanLocked(trustKey{kind, level, node})
}

// RescanAll rescans every registered node.
func (g *Gate) RescanAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.trust {
		g.rescanLocked(key)
	}
}

func (g *Gate) rescanLocked(key trustKey) {
	nt, exists := g.trust[key]
	if !exists {
		return
	}
	nt.score = MaxTrust
	nt.threatLevel = 0
	nt.lastScan = g.now()
}

// TrustScore returns a node's current trust, or -1 if it was never
// registered.
func (g *Gate) TrustScore(kind types.ResourceKind, level, node int) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nt, exists := g.trust[trustKey{kind, level, node}]
	if !exists {
		return -1
	}
	return nt.score
}

// ThreatLevel returns a node's accumulated threat count, or -1 if it was
// never registered.
func (g *Gate) ThreatLevel(kind types.ResourceKind, level, node int) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nt, exists := g.trust[trustKey{kind, level, node}]
	if !exists {
		return -1
	}
	return nt.threatLevel
}

// SessionCount returns the number of recorded sessions, expired or not.
func (g *Gate) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}
