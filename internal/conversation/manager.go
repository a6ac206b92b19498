// Package conversation tracks the rolling state of one chat session.
package conversation

import (
	"slices"
	"time"

	"portfolio-chat/internal/domain"
)

const (
	// DefaultIdleTimeout is how long a session may stay silent before the
	// next update starts from a fresh context.
	DefaultIdleTimeout = 30 * time.Minute
	// MaxHistory bounds the number of raw inputs kept.
	MaxHistory = 10
)

// Manager owns the context of a single session. It is not safe for
// concurrent use: a session processes one turn at a time and the last
// committed update wins.
type Manager struct {
	ctx         domain.ConversationContext
	idleTimeout time.Duration
	now         func() time.Time
}

type Option func(*Manager)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// NewManager starts a session with an initial context.
func NewManager(opts ...Option) *Manager {
	m := &Manager{idleTimeout: DefaultIdleTimeout, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx = m.initial()
	return m
}

// Restore resumes a session from a persisted snapshot. Expiry is not applied
// here; it is checked on the next UpdateContext.
func Restore(snapshot domain.ConversationContext, opts ...Option) *Manager {
	m := NewManager(opts...)
	m.ctx = clone(snapshot)
	if m.ctx.History == nil {
		m.ctx.History = []string{}
	}
	if m.ctx.UserPreferences == nil {
		m.ctx.UserPreferences = []string{}
	}
	return m
}

func (m *Manager) initial() domain.ConversationContext {
	return domain.ConversationContext{
		LastInteraction: m.now(),
		History:         []string{},
		UserPreferences: []string{},
	}
}

// UpdateContext records one turn. detected is the confidently classified
// intent, or domain.IntentNone when the turn was not actionable; in that case
// topic and depth are left as they were.
func (m *Manager) UpdateContext(input string, detected domain.Intent) {
	if m.Expired() {
		m.ctx = m.initial()
	}

	if detected != domain.IntentNone {
		if detected == m.ctx.CurrentTopic {
			m.ctx.TopicDepth++
		} else {
			m.ctx.TopicDepth = 0
		}
		m.ctx.CurrentTopic = detected
	}

	m.ctx.History = append(m.ctx.History, input)
	if n := len(m.ctx.History); n > MaxHistory {
		m.ctx.History = slices.Clone(m.ctx.History[n-MaxHistory:])
	}
	m.ctx.LastInteraction = m.now()
}

// Expired reports whether the idle timeout has elapsed since the last turn.
func (m *Manager) Expired() bool {
	return m.now().Sub(m.ctx.LastInteraction) > m.idleTimeout
}

// Context returns a snapshot the caller may keep.
func (m *Manager) Context() domain.ConversationContext {
	return clone(m.ctx)
}

// AddUserPreference records a clicked suggestion action once.
func (m *Manager) AddUserPreference(action string) {
	if action == "" || slices.Contains(m.ctx.UserPreferences, action) {
		return
	}
	m.ctx.UserPreferences = append(m.ctx.UserPreferences, action)
}

// Reset returns to the initial context.
func (m *Manager) Reset() {
	m.ctx = m.initial()
}

func clone(c domain.ConversationContext) domain.ConversationContext {
	c.History = slices.Clone(c.History)
	c.UserPreferences = slices.Clone(c.UserPreferences)
	return c
}
