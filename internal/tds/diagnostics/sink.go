// Package diagnostics implements the optional diagnostics sink
// collaborator (spec.md §6): structured events keyed by a string
// session id that the core calls into but never requires to be present.
package diagnostics

import "time"

// Sink receives structured session/transaction events. Implementations
// need not tolerate a nil receiver; the components that hold a Sink
// default it to NoopSink, so call sites never need a nil check.
type Sink interface {
	PacketSent(sessionID string, bytes int)
	PacketReceived(sessionID string, bytes int)
	AttentionSent(sessionID string)
	AttentionAcked(sessionID string, latency time.Duration)
	TimeoutExpired(sessionID string)
	SessionBroken(sessionID string)
	TransactionOpened(sessionID string)
	TransactionClosed(sessionID string)
}

// NoopSink discards every event. It is the default sink so a session
// can always call into one without a nil check.
type NoopSink struct{}

func (NoopSink) PacketSent(string, int)                  {}
func (NoopSink) PacketReceived(string, int)               {}
func (NoopSink) AttentionSent(string)                     {}
func (NoopSink) AttentionAcked(string, time.Duration)     {}
func (NoopSink) TimeoutExpired(string)                    {}
func (NoopSink) SessionBroken(string)                     {}
func (NoopSink) TransactionOpened(string)                 {}
func (NoopSink) TransactionClosed(string)                 {}

// multiSink fans every event out to all of its members.
type multiSink struct {
	sinks []Sink
}

// Multi composes sinks into a single Sink, so e.g. a MetricsSink and a
// TracingSink can both observe the same session.
func Multi(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) PacketSent(sessionID string, bytes int) {
	for _, s := range m.sinks {
		s.PacketSent(sessionID, bytes)
	}
}

func (m *multiSink) PacketReceived(sessionID string, bytes int) {
	for _, s := range m.sinks {
		s.PacketReceived(sessionID, bytes)
	}
}

func (m *multiSink) AttentionSent(sessionID string) {
	for _, s := range m.sinks {
		s.AttentionSent(sessionID)
	}
}

func (m *multiSink) AttentionAcked(sessionID string, latency time.Duration) {
	for _, s := range m.sinks {
		s.AttentionAcked(sessionID, latency)
	}
}

func (m *multiSink) TimeoutExpired(sessionID string) {
	for _, s := range m.sinks {
		s.TimeoutExpired(sessionID)
	}
}

func (m *multiSink) SessionBroken(sessionID string) {
	for _, s := range m.sinks {
		s.SessionBroken(sessionID)
	}
}

func (m *multiSink) TransactionOpened(sessionID string) {
	for _, s := range m.sinks {
		s.TransactionOpened(sessionID)
	}
}

func (m *multiSink) TransactionClosed(sessionID string) {
	for _, s := range m.sinks {
		s.TransactionClosed(sessionID)
	}
}
