// Package store holds the worker-side set of open scripts.
//
// A Store maps file names to document mirrors and carries the analysis
// options for the whole workspace. It implements analysis.Host, so an engine
// reads scripts directly from it.
package store

import (
	"sort"
	"sync"

	"github.com/dshills/deuce/internal/analysis"
	werrors "github.com/dshills/deuce/internal/errors"
	"github.com/dshills/deuce/internal/mirror"
	"github.com/dshills/deuce/internal/position"
)

// Option configures a Store.
type Option func(*Store)

// WithMaxHistory bounds the edit history kept per script.
func WithMaxHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithOptions sets the initial analysis options.
func WithOptions(opts analysis.Options) Option {
	return func(s *Store) {
		s.options = opts.Clone()
	}
}

// Store is the set of open scripts.
type Store struct {
	mu         sync.RWMutex
	scripts    map[string]*mirror.Mirror
	options    analysis.Options
	maxHistory int
}

var _ analysis.Host = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		scripts:    make(map[string]*mirror.Mirror),
		options:    analysis.DefaultOptions(),
		maxHistory: mirror.DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureScript opens a script, or replaces its whole content if it is
// already open.
func (s *Store) EnsureScript(fileName, content string) {
	content = position.NormalizeNewlines(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.scripts[fileName]; ok {
		m.ReplaceAll(content)
		return
	}
	s.scripts[fileName] = mirror.New(fileName, content, mirror.WithMaxHistory(s.maxHistory))
}

// EditScript replaces [start,end) of an open script with text.
func (s *Store) EditScript(fileName string, start, end int, text string) error {
	text = position.NormalizeNewlines(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.scripts[fileName]
	if !ok {
		return unknownFile("editScript", fileName)
	}
	return m.ApplyEdit(start, end, text)
}

// RemoveScript closes a script. Removing an unknown file does nothing.
func (s *Store) RemoveScript(fileName string) {
	s.mu.Lock()
	delete(s.scripts, fileName)
	s.mu.Unlock()
}

// HasScript reports whether fileName is open.
func (s *Store) HasScript(fileName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.scripts[fileName]
	return ok
}

// Len returns the number of open scripts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}

// ScriptFileNames returns the open file names in sorted order.
func (s *Store) ScriptFileNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.scripts))
	for name := range s.scripts {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ScriptVersion returns the current version of a script.
func (s *Store) ScriptVersion(fileName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.scripts[fileName]
	if !ok {
		return 0, unknownFile("scriptVersion", fileName)
	}
	return m.Version(), nil
}

// ScriptSnapshot returns an immutable copy of a script's current text.
func (s *Store) ScriptSnapshot(fileName string) (mirror.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.scripts[fileName]
	if !ok {
		return mirror.Snapshot{}, unknownFile("scriptSnapshot", fileName)
	}
	return m.Snapshot(), nil
}

// ChangeRangeSince returns the coalesced edit applied to a script since
// oldVersion.
func (s *Store) ChangeRangeSince(fileName string, oldVersion int) (mirror.ChangeRange, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.scripts[fileName]
	if !ok {
		return mirror.ChangeRange{}, false, unknownFile("changeRangeSince", fileName)
	}
	return m.ChangeRangeSince(oldVersion)
}

// AnalysisOptions returns a copy of the current analysis options.
func (s *Store) AnalysisOptions() analysis.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options.Clone()
}

// SetAnalysisOptions replaces the analysis options wholesale.
func (s *Store) SetAnalysisOptions(opts analysis.Options) {
	s.mu.Lock()
	s.options = opts.Clone()
	s.mu.Unlock()
}

func unknownFile(op, fileName string) error {
	return werrors.Newf(werrors.KindUnknownFile, op, "no script named %q", fileName)
}
