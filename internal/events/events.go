// Package events decouples scan progress reporting from its consumers.
package events

import (
	"encoding/json"

	"assetbank/internal/logger"
)

// Scan event names.
const (
	SeedStarted    = "seed.started"
	SeedProgress   = "seed.progress"
	SeedPaused     = "seed.paused"
	SeedResumed    = "seed.resumed"
	SeedFastDone   = "seed.fast_complete"
	SeedEnrichDone = "seed.enrich_complete"
	SeedCompleted  = "seed.completed"
	SeedCancelled  = "seed.cancelled"
	SeedError      = "seed.error"
)

// Sink receives named events with a JSON-serializable payload. Implementations
// must tolerate being called from the scanner goroutine.
type Sink interface {
	Send(event string, payload any)
}

// LogSink writes events to the application log.
type LogSink struct {
	Log *logger.Logger
}

func (s *LogSink) Send(event string, payload any) {
	if s == nil || s.Log == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.Log.Warn("event %s: payload not serializable: %v", event, err)
		return
	}
	s.Log.Info("event %s %s", event, b)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Send(string, any) {}
