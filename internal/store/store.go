package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/platform"
)

const (
	// MarkerFile names the active version of a record.
	MarkerFile = "Current Version"
	// ExternalMarker flags a record placed by something other than this store.
	ExternalMarker = "EXTERNAL_INSTALL"
	// StagingDir holds records under construction.
	StagingDir = ".staging"

	dirPerm  = 0o755
	filePerm = 0o644
)

// ErrNoCurrentVersion is returned by Prune when a record has no marker.
var ErrNoCurrentVersion = errors.New("no current version")

// Outcome is the result of a successful Commit.
type Outcome int

const (
	// Installed means the id had no record before.
	Installed Outcome = iota
	// Upgraded means a different version became current.
	Upgraded
	// Reinstalled means the version was already current; nothing changed.
	Reinstalled
)

func (o Outcome) String() string {
	switch o {
	case Installed:
		return "installed"
	case Upgraded:
		return "upgraded"
	case Reinstalled:
		return "reinstalled"
	default:
		return "unknown"
	}
}

// Store is a versioned install directory. Mutations of one id are serialized;
// different ids proceed independently.
type Store struct {
	root   string
	ignore []string
	logger *zap.Logger

	// writeMarker replaces the marker file; tests swap it to inject failures.
	writeMarker func(path string, data []byte, perm os.FileMode) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIgnore skips record directories whose names match any of the given
// doublestar patterns when listing ids.
func WithIgnore(patterns ...string) Option {
	return func(s *Store) { s.ignore = append(s.ignore, patterns...) }
}

// New returns a Store rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:        root,
		logger:      zap.NewNop(),
		writeMarker: platform.WriteFileAtomic,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the install directory.
func (s *Store) Root() string {
	return s.root
}

// RecordDir returns the record directory of id.
func (s *Store) RecordDir(id string) string {
	return filepath.Join(s.root, id)
}

// VersionDir returns the directory holding version of id.
func (s *Store) VersionDir(id, version string) string {
	return filepath.Join(s.root, id, version)
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// NewStagingDir creates an empty, uniquely named directory under the staging
// area of the store.
func (s *Store) NewStagingDir() (string, error) {
	dir := filepath.Join(s.root, StagingDir, uuid.New().String())
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	return dir, nil
}

// CleanStaging removes everything left in the staging area.
func (s *Store) CleanStaging() error {
	if err := os.RemoveAll(filepath.Join(s.root, StagingDir)); err != nil {
		return fmt.Errorf("cleaning staging area: %w", err)
	}
	return nil
}

// Commit publishes the unpacked package in staged as version of id.
//
// Without a record, the record is built in staging and renamed into place.
// If the marker already holds exactly version, the disk is left untouched and
// staged is not consumed. Otherwise staged becomes <id>/<version> and the marker is
// rewritten; earlier versions stay on disk until pruned.
func (s *Store) Commit(id, version, staged string) (Outcome, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	if err := checkVersion(version); err != nil {
		return 0, err
	}

	unlock := s.lock(id)
	defer unlock()

	recordDir := s.RecordDir(id)
	if _, err := os.Stat(recordDir); errors.Is(err, fs.ErrNotExist) {
		if err := s.publish(id, version, staged); err != nil {
			return 0, err
		}
		s.logger.Info("extension installed", zap.String("id", id), zap.String("version", version))
		return Installed, nil
	} else if err != nil {
		return 0, fmt.Errorf("checking record %s: %w", id, err)
	}

	current, ok, err := s.ResolveCurrent(id)
	if err != nil {
		return 0, err
	}
	if ok && current == version && dirExists(s.VersionDir(id, current)) {
		s.logger.Debug("extension version already current", zap.String("id", id), zap.String("version", current))
		return Reinstalled, nil
	}
	if !ok {
		s.logger.Warn("record has no current version marker", zap.String("id", id))
	}

	if err := s.upgrade(id, version, staged); err != nil {
		return 0, err
	}
	s.logger.Info("extension upgraded",
		zap.String("id", id),
		zap.String("from", current),
		zap.String("version", version),
	)
	return Upgraded, nil
}

// publish assembles a fresh record in staging and renames it into place.
func (s *Store) publish(id, version, staged string) error {
	work, err := s.NewStagingDir()
	if err != nil {
		return err
	}

	if err := platform.MoveDir(staged, filepath.Join(work, version)); err != nil {
		os.RemoveAll(work)
		return fmt.Errorf("staging %s: %w", id, err)
	}
	if err := os.WriteFile(filepath.Join(work, MarkerFile), []byte(version), filePerm); err != nil {
		os.RemoveAll(work)
		return fmt.Errorf("writing version marker: %w", err)
	}
	if err := platform.MoveDir(work, s.RecordDir(id)); err != nil {
		os.RemoveAll(work)
		return fmt.Errorf("publishing %s: %w", id, err)
	}
	return nil
}

// upgrade moves staged into an existing record and makes it current. A kept
// directory for the same version is set aside until the new marker is
// written and restored if anything fails.
func (s *Store) upgrade(id, version, staged string) error {
	recordDir := s.RecordDir(id)
	dst := s.VersionDir(id, version)
	suffix := uuid.NewString()
	incoming := filepath.Join(recordDir, "."+version+".incoming-"+suffix)
	previous := filepath.Join(recordDir, "."+version+".previous-"+suffix)

	if err := platform.MoveDir(staged, incoming); err != nil {
		return fmt.Errorf("moving %s/%s into place: %w", id, version, err)
	}

	kept := dirExists(dst)
	if kept {
		if err := os.Rename(dst, previous); err != nil {
			os.RemoveAll(incoming)
			return fmt.Errorf("setting aside %s/%s: %w", id, version, err)
		}
	} else if err := os.RemoveAll(dst); err != nil {
		os.RemoveAll(incoming)
		return fmt.Errorf("removing stale %s/%s: %w", id, version, err)
	}

	restore := func() {
		os.RemoveAll(dst)
		if kept {
			os.Rename(previous, dst)
		}
	}

	if err := os.Rename(incoming, dst); err != nil {
		os.RemoveAll(incoming)
		restore()
		return fmt.Errorf("moving %s/%s into place: %w", id, version, err)
	}
	if err := s.writeMarker(filepath.Join(recordDir, MarkerFile), []byte(version), filePerm); err != nil {
		restore()
		return fmt.Errorf("writing version marker: %w", err)
	}
	if kept {
		if err := os.RemoveAll(previous); err != nil {
			s.logger.Warn("removing replaced version", zap.String("id", id), zap.String("path", previous), zap.Error(err))
		}
	}
	return nil
}

// ResolveCurrent returns the active version of id. ok is false when the
// record or its marker does not exist.
func (s *Store) ResolveCurrent(id string) (version string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.RecordDir(id), MarkerFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading version marker of %s: %w", id, err)
	}
	version = strings.TrimSpace(string(data))
	if version == "" {
		return "", false, nil
	}
	return version, true, nil
}

// Uninstall deletes the record of id. Uninstalling an id without a record
// succeeds.
func (s *Store) Uninstall(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	dir := s.RecordDir(id)
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	s.logger.Info("extension uninstalled", zap.String("id", id))
	return nil
}

// IDs lists record directory names in directory order. Hidden entries,
// regular files and names matching an ignore pattern are skipped. A missing
// install directory yields no ids.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading install directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || s.ignored(name) {
			continue
		}
		ids = append(ids, name)
	}
	return ids, nil
}

func (s *Store) ignored(name string) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// IsExternal reports whether the record of id carries the external marker.
func (s *Store) IsExternal(id string) bool {
	_, err := os.Stat(filepath.Join(s.RecordDir(id), ExternalMarker))
	return err == nil
}

// Prune removes every version directory of id except the current one and
// returns the removed version names.
func (s *Store) Prune(id string) ([]string, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	current, ok, err := s.ResolveCurrent(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("pruning %s: %w", id, ErrNoCurrentVersion)
	}

	entries, err := os.ReadDir(s.RecordDir(id))
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.RecordDir(id), e.Name())); err != nil {
			return removed, fmt.Errorf("removing %s/%s: %w", id, e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	if len(removed) > 0 {
		s.logger.Info("pruned old versions", zap.String("id", id), zap.Strings("versions", removed))
	}
	return removed, nil
}

func checkID(id string) error {
	if !extension.IsValidID(id) {
		return fmt.Errorf("invalid extension id %q", id)
	}
	return nil
}

func checkVersion(version string) error {
	if version == "" || version != filepath.Base(version) || !filepath.IsLocal(version) || strings.HasPrefix(version, ".") {
		return fmt.Errorf("invalid version %q", version)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
