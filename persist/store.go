// Package persist provides the durable store for critical events: one
// JSON record per event, written before the event is queued, replayed
// once at startup, and removed after the replay attempt.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// recordPrefix names every durable record file.
const recordPrefix = "critical_event_"

// Record is the durable form of a bus event.
// This mirrors the bus event shape to avoid circular imports; every
// field round-trips exactly through JSON.
type Record struct {
	// ID uniquely identifies the event instance.
	ID string `json:"id"`

	// Type is the event kind.
	Type string `json:"type"`

	// Data is the opaque event payload.
	Data map[string]any `json:"data"`

	// Source identifies the emitting component.
	Source string `json:"source"`

	// Priority is the event priority.
	Priority int `json:"priority"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// Store writes and replays critical-event records under one directory.
// Methods are safe for concurrent use; each record is an independent
// file and the filesystem provides the only coordination needed.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore opens a store rooted at dir, creating the directory when
// missing.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("persist: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Write durably records one event. The file is named by the event's
// timestamp and type so records sort chronologically on disk.
func (s *Store) Write(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: encode record %s: %w", rec.ID, err)
	}

	name := fmt.Sprintf("%s%d_%s.json", recordPrefix, rec.Timestamp.UnixNano(), sanitize(rec.Type))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", name, err)
	}
	return nil
}

// Replay scans the directory and hands every record younger than
// window to inject. Every record file is removed after the attempt,
// whether it was replayed, expired, or unreadable, so nothing is
// replayed twice across restarts. It returns the number of records
// injected and the number of corrupt or unreadable records skipped.
func (s *Store) Replay(window time.Duration, inject func(Record)) (replayed, skipped int) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Error().Err(err).Str("dir", s.dir).Msg("replay scan failed")
		return 0, 0
	}

	now := time.Now()
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), recordPrefix) {
			continue
		}
		path := filepath.Join(s.dir, ent.Name())

		rec, err := readRecord(path)
		if err != nil {
			skipped++
			s.log.Warn().Err(err).Str("record", ent.Name()).Msg("skipping unreadable record")
		} else if age := now.Sub(rec.Timestamp); age < window {
			inject(rec)
			replayed++
		} else {
			s.log.Debug().Str("record", ent.Name()).Dur("age", now.Sub(rec.Timestamp)).Msg("record outside replay window")
		}

		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("record", ent.Name()).Msg("failed to remove record")
		}
	}
	return replayed, skipped
}

func readRecord(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// sanitize makes an event type safe to embed in a file name.
func sanitize(typ string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, typ)
}
