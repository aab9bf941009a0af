package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SecretType defines the revision kind a finding was reported for.
type SecretType string

const (
	// SecretTypeHead indicates a secret found at the default branch tip.
	SecretTypeHead SecretType = "head"
	// SecretTypeCommit indicates a secret introduced by an older commit.
	SecretTypeCommit SecretType = "commit"
	// SecretTypeLocal indicates a secret found in a local directory.
	SecretTypeLocal SecretType = "local"
)

// HitLevel defines a custom log level for findings.
// Implemented as WarnLevel but transformed to "hit" in output.
const HitLevel zerolog.Level = zerolog.WarnLevel

// HitLevelWriter wraps an io.Writer and rewrites the level of the next hit event to "hit".
type HitLevelWriter struct {
	out       io.Writer
	mu        sync.Mutex
	nextIsHit bool
}

func (w *HitLevelWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	isHit := w.nextIsHit
	w.nextIsHit = false
	out := w.out
	w.mu.Unlock()

	if isHit && len(p) > 0 {
		var entry map[string]any
		if err := json.Unmarshal(p, &entry); err == nil {
			if entry["level"] == "warn" || entry["level"] == "error" {
				entry["level"] = "hit"
			}
			delete(entry, "_hit")

			if rewritten, err := json.Marshal(entry); err == nil {
				rewritten = append(rewritten, '\n')
				if _, err := out.Write(rewritten); err != nil {
					return 0, err
				}
				return len(p), nil
			}
		}
	}

	return out.Write(p)
}

func (w *HitLevelWriter) markNextAsHit() {
	w.mu.Lock()
	w.nextIsHit = true
	w.mu.Unlock()
}

func (w *HitLevelWriter) SetOutput(out io.Writer) {
	w.mu.Lock()
	w.out = out
	w.mu.Unlock()
}

// NewHitLevelWriter creates a new HitLevelWriter wrapping the given io.Writer.
func NewHitLevelWriter(out io.Writer) *HitLevelWriter {
	return &HitLevelWriter{out: out}
}

// HitEvent wraps a zerolog.Event for hit-level logging.
type HitEvent struct {
	event  *zerolog.Event
	writer *HitLevelWriter
}

func (h *HitEvent) Str(key, val string) *HitEvent {
	h.event.Str(key, val)
	return h
}

func (h *HitEvent) Int(key string, val int) *HitEvent {
	h.event.Int(key, val)
	return h
}

func (h *HitEvent) Bool(key string, val bool) *HitEvent {
	h.event.Bool(key, val)
	return h
}

func (h *HitEvent) Type(t SecretType) *HitEvent {
	h.event.Str("type", string(t))
	return h
}

func (h *HitEvent) Err(err error) *HitEvent {
	h.event.Err(err)
	return h
}

func (h *HitEvent) Msg(msg string) {
	if h.writer != nil {
		h.writer.markNextAsHit()
	}
	h.event.Bool("_hit", true).Msg(msg)
}

var (
	globalHitWriter   *HitLevelWriter
	globalHitWriterMu sync.Mutex
)

func currentHitWriter() *HitLevelWriter {
	globalHitWriterMu.Lock()
	defer globalHitWriterMu.Unlock()

	if globalHitWriter == nil {
		globalHitWriter = NewHitLevelWriter(os.Stderr)
		log.Logger = zerolog.New(globalHitWriter).With().Timestamp().Logger()
	}
	return globalHitWriter
}

// Hit creates a hit-level log event for a finding. Hits are emitted regardless of the global log level.
// Example: logging.Hit().Type(logging.SecretTypeHead).Str("ruleName", "AWS Key").Msg("HIT")
func Hit() *HitEvent {
	writer := currentHitWriter()
	return &HitEvent{
		event:  log.WithLevel(zerolog.ErrorLevel),
		writer: writer,
	}
}

// ParseLevel extends zerolog's ParseLevel to support "hit" level.
func ParseLevel(levelStr string) (zerolog.Level, error) {
	if levelStr == "hit" {
		return HitLevel, nil
	}
	return zerolog.ParseLevel(levelStr)
}

// SetGlobalHitWriter sets the HitLevelWriter the global logger writes through.
func SetGlobalHitWriter(writer *HitLevelWriter) {
	globalHitWriterMu.Lock()
	globalHitWriter = writer
	globalHitWriterMu.Unlock()
}
