package training

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// PatternSource loads the active patterns.
type PatternSource interface {
	ListActivePatterns(ctx context.Context) ([]ClassificationPattern, error)
}

// Store serves versioned pattern snapshots. When redis is unavailable the
// version is tracked in-process only.
type Store struct {
	source   PatternSource
	versions *Versions
	logger   *slog.Logger

	local   atomic.Int64
	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// NewStore builds a pattern store. versions may be nil for a single process.
func NewStore(source PatternSource, versions *Versions, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{source: source, versions: versions, logger: logger}
	s.local.Store(1)
	return s
}

// Snapshot returns the snapshot for the current version, loading it once per
// version.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	version := s.version(ctx)
	if cur := s.current.Load(); cur != nil && cur.Version == version {
		return cur, nil
	}
	v, err, _ := s.group.Do(strconv.FormatInt(version, 10), func() (interface{}, error) {
		if cur := s.current.Load(); cur != nil && cur.Version == version {
			return cur, nil
		}
		patterns, err := s.source.ListActivePatterns(ctx)
		if err != nil {
			return nil, fmt.Errorf("training: load patterns: %w", err)
		}
		snap := NewSnapshot(version, patterns)
		for _, id := range snap.Skipped() {
			s.logger.Warn("pattern skipped", slog.Int64("pattern_id", id))
		}
		s.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate moves the store to a new version after a pattern change.
func (s *Store) Invalidate(ctx context.Context) {
	s.local.Add(1)
	s.current.Store(nil)
	if _, err := s.versions.Bump(ctx); err != nil {
		s.logger.Warn("bump pattern version", slog.Any("error", err))
	}
}

// Watch drops the cached snapshot whenever another process bumps the version.
func (s *Store) Watch(ctx context.Context) error {
	return s.versions.Listen(ctx, func(ver int64) {
		if cur := s.current.Load(); cur != nil && cur.Version < ver {
			s.current.Store(nil)
		}
	})
}

func (s *Store) version(ctx context.Context) int64 {
	if s.versions == nil || s.versions.client == nil {
		return s.local.Load()
	}
	ver, err := s.versions.Current(ctx)
	if err != nil {
		s.logger.Warn("read pattern version", slog.Any("error", err))
		if cur := s.current.Load(); cur != nil {
			return cur.Version
		}
		return -s.local.Load()
	}
	return ver
}
