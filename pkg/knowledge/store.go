package knowledge

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store holds the active pack and swaps it atomically on reload. Readers
// never observe a partially loaded pack; a failed reload keeps the previous
// one.
type Store struct {
	path    string
	current atomic.Pointer[Pack]
	loaded  atomic.Int64
	reloads atomic.Int64
	logger  *slog.Logger
}

// NewStore loads the pack at path, or the embedded default pack when path is
// empty.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: slog.Default().With("component", "knowledge"),
	}

	var p *Pack
	if path == "" {
		p = Default()
	} else {
		var err error
		if p, err = Load(path); err != nil {
			return nil, err
		}
	}
	s.set(p)

	s.logger.Info("Knowledge pack loaded",
		"name", p.Name,
		"version", p.Version,
		"source", s.source(),
	)
	return s, nil
}

// NewStaticStore wraps an already parsed pack. Reload is a no-op.
func NewStaticStore(p *Pack) *Store {
	s := &Store{logger: slog.Default().With("component", "knowledge")}
	s.set(p)
	return s
}

// Current returns the active pack.
func (s *Store) Current() *Pack {
	return s.current.Load()
}

// Path returns the file the store loads from, or "" for the embedded pack.
func (s *Store) Path() string {
	return s.path
}

// LoadedAt returns when the active pack was installed.
func (s *Store) LoadedAt() time.Time {
	return time.Unix(0, s.loaded.Load())
}

// Reloads returns the number of successful reloads since creation.
func (s *Store) Reloads() int64 {
	return s.reloads.Load()
}

// Reload re-reads the pack file. On failure the active pack is kept and the
// error returned.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := Load(s.path)
	if err != nil {
		s.logger.Error("Knowledge pack reload failed, keeping previous pack",
			"path", s.path,
			"error", err,
		)
		return fmt.Errorf("reload failed: %w", err)
	}

	prev := s.Current()
	s.set(p)
	s.reloads.Add(1)

	s.logger.Info("Knowledge pack reloaded",
		"path", s.path,
		"previous_version", prev.Version,
		"version", p.Version,
	)
	return nil
}

func (s *Store) set(p *Pack) {
	s.current.Store(p)
	s.loaded.Store(time.Now().UnixNano())
}

func (s *Store) source() string {
	if s.path == "" {
		return "embedded"
	}
	return s.path
}
