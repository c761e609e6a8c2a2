package service

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/exterr"
	"github.com/agentx-labs/extmgr/internal/manifest"
	"github.com/agentx-labs/extmgr/internal/metrics"
	"github.com/agentx-labs/extmgr/internal/store"
)

// prepared is an install that passed every check and waits to be committed.
type prepared struct {
	id       string
	manifest *manifest.Manifest
	staging  string
}

// InstallExtension installs the container at path. The sink receives
// OnExtensionInstalled, OnExtensionVersionReinstalled or a failure.
func (s *Service) InstallExtension(path string, sink Sink) {
	if !s.begin() {
		s.fail(sink, path, ErrClosed)
		return
	}
	ticket := s.seq.take()

	go func() {
		defer s.done()
		start := time.Now()

		var (
			p   *prepared
			err error
		)
		s.limited(func() { p, err = s.prepareInstall(path) })
		if p != nil {
			defer os.RemoveAll(p.staging)
		}

		s.seq.wait(ticket)
		defer s.seq.done(ticket)

		if err != nil {
			s.fail(sink, path, err)
			s.observe(metrics.KindInstall, metrics.OutcomeFailed, start)
			return
		}

		outcome, ext, err := s.commit(p)
		if err != nil {
			s.fail(sink, path, err)
			s.observe(metrics.KindInstall, metrics.OutcomeFailed, start)
			return
		}

		s.logger.Info("extension install finished",
			zap.String("id", p.id),
			zap.String("path", path),
			zap.String("version", p.manifest.Version.Original()),
			zap.Stringer("outcome", outcome),
		)
		s.observe(metrics.KindInstall, outcome.String(), start)

		switch outcome {
		case store.Reinstalled:
			id := p.id
			s.loop.Post(func() { sink.OnExtensionVersionReinstalled(id) })
		default:
			isUpgrade := outcome == store.Upgraded
			s.loop.Post(func() { sink.OnExtensionInstalled(ext, isUpgrade) })
		}
	}()
}

// prepareInstall verifies and unpacks the container into a staging directory
// and validates its manifest. Nothing outside the staging area is touched.
func (s *Service) prepareInstall(path string) (*prepared, error) {
	c, err := crx.Open(path)
	if err != nil {
		return nil, err
	}

	staging, err := s.store.NewStagingDir()
	if err != nil {
		return nil, err
	}
	p := &prepared{id: c.ID(), staging: staging}

	if err := c.Extract(staging); err != nil {
		return p, err
	}

	m, err := manifest.Load(staging)
	if err != nil {
		return p, err
	}
	if m.ID != "" && m.ID != p.id {
		return p, exterr.New(exterr.InvalidManifest, manifest.KeyID,
			fmt.Errorf("declared id %s does not match key id %s", m.ID, p.id))
	}
	p.manifest = m
	return p, nil
}

// commit publishes a prepared install. The returned extension is nil for a
// reinstall.
func (s *Service) commit(p *prepared) (store.Outcome, *extension.Extension, error) {
	version := p.manifest.Version.Original()
	outcome, err := s.store.Commit(p.id, version, p.staging)
	if err != nil {
		return 0, nil, err
	}
	if outcome == store.Reinstalled {
		return outcome, nil, nil
	}

	loc := extension.Internal
	if s.store.IsExternal(p.id) {
		loc = extension.External
	}
	ext, err := extension.New(p.manifest, p.id, loc, s.store.VersionDir(p.id, version))
	if err != nil {
		return 0, nil, err
	}
	return outcome, ext, nil
}
