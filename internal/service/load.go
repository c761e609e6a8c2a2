package service

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/exterr"
	"github.com/agentx-labs/extmgr/internal/manifest"
	"github.com/agentx-labs/extmgr/internal/metrics"
	"github.com/agentx-labs/extmgr/internal/store"
)

// recordResult is the outcome of loading one record of a bulk load.
type recordResult struct {
	path string
	ext  *extension.Extension
	err  error
}

// LoadExtensionsFromInstallDirectory loads the current version of every
// record in the store. Each failing record is reported on its own; the
// loaded extensions are delivered once, sorted by name.
func (s *Service) LoadExtensionsFromInstallDirectory(sink Sink) {
	if !s.begin() {
		s.fail(sink, s.store.Root(), ErrClosed)
		s.loop.Post(func() { sink.OnExtensionsLoaded(nil) })
		return
	}

	go func() {
		defer s.done()
		start := time.Now()

		exts := s.loadAll(sink)

		s.observe(metrics.KindLoadAll, metrics.OutcomeLoaded, start)
		s.loop.Post(func() { sink.OnExtensionsLoaded(exts) })
	}()
}

func (s *Service) loadAll(sink Sink) []*extension.Extension {
	ids, err := s.store.IDs()
	if err != nil {
		s.fail(sink, s.store.Root(), err)
		return nil
	}
	s.logger.Debug("scanning install directory", zap.String("root", s.store.Root()), zap.Int("records", len(ids)))

	results := make([]recordResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = s.loadRecord(id)
			return nil
		})
	}
	_ = g.Wait()

	var exts []*extension.Extension
	for _, r := range results {
		if r.err != nil {
			s.fail(sink, r.path, r.err)
			continue
		}
		exts = append(exts, r.ext)
	}

	sort.SliceStable(exts, func(i, j int) bool {
		return exts[i].Name() < exts[j].Name()
	})
	return exts
}

// loadRecord loads the current version of the record named dirName.
func (s *Service) loadRecord(dirName string) recordResult {
	recordDir := s.store.RecordDir(dirName)

	version, ok, err := s.store.ResolveCurrent(dirName)
	if err != nil {
		return recordResult{path: recordDir, err: exterr.New(exterr.CannotReadFile, store.MarkerFile, err)}
	}
	if !ok {
		return recordResult{path: recordDir, err: exterr.New(exterr.CannotReadFile, store.MarkerFile, nil)}
	}

	dir := s.store.VersionDir(dirName, version)
	m, err := manifest.Load(dir)
	if err != nil {
		return recordResult{path: dir, err: err}
	}

	id, err := recordID(m, dirName)
	if err != nil {
		return recordResult{path: dir, err: err}
	}

	loc := extension.Internal
	if s.store.IsExternal(dirName) {
		loc = extension.External
	}
	ext, err := extension.New(m, id, loc, dir)
	if err != nil {
		return recordResult{path: dir, err: err}
	}
	return recordResult{path: dir, ext: ext}
}

// recordID picks the id of a stored record: the declared id, which must
// agree with a directory named by id, else the directory name itself.
func recordID(m *manifest.Manifest, dirName string) (string, error) {
	dirIsID := extension.IsValidID(dirName)
	switch {
	case m.ID != "" && dirIsID && m.ID != dirName:
		return "", exterr.New(exterr.InvalidManifest, manifest.KeyID,
			fmt.Errorf("declared id %s does not match record %s", m.ID, dirName))
	case m.ID != "":
		return m.ID, nil
	case dirIsID:
		return dirName, nil
	default:
		return "", exterr.New(exterr.InvalidManifest, manifest.KeyID,
			fmt.Errorf("record %s has no usable id", dirName))
	}
}

// LoadExtension loads the unpacked extension in dir in place. Extensions
// without a declared id get the next sequential id.
func (s *Service) LoadExtension(dir string, sink Sink) {
	if !s.begin() {
		s.fail(sink, dir, ErrClosed)
		return
	}

	go func() {
		defer s.done()
		start := time.Now()

		var (
			ext *extension.Extension
			err error
		)
		s.limited(func() { ext, err = s.loadUnpacked(dir) })
		if err != nil {
			s.fail(sink, dir, err)
			s.observe(metrics.KindLoad, metrics.OutcomeFailed, start)
			return
		}

		s.logger.Info("extension loaded",
			zap.String("id", ext.ID()),
			zap.String("path", ext.Path()),
			zap.String("version", ext.VersionString()),
		)
		s.observe(metrics.KindLoad, metrics.OutcomeLoaded, start)
		s.loop.Post(func() { sink.OnExtensionsLoaded([]*extension.Extension{ext}) })
	}()
}

func (s *Service) loadUnpacked(dir string) (*extension.Extension, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, exterr.New(exterr.CannotReadFile, dir, err)
	}
	m, err := manifest.Load(abs)
	if err != nil {
		return nil, err
	}

	id := m.ID
	if id == "" {
		id = s.ids.Next()
	}
	return extension.New(m, id, extension.Load, abs)
}
