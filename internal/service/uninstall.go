package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/metrics"
)

// UninstallExtension removes the record of id. Removing an id that is not
// installed succeeds. Malformed ids are rejected without touching the disk.
func (s *Service) UninstallExtension(id string, sink Sink) {
	if !s.begin() {
		s.uninstalled(sink, id, ErrClosed)
		return
	}
	ticket := s.seq.take()

	go func() {
		defer s.done()
		start := time.Now()

		s.seq.wait(ticket)
		defer s.seq.done(ticket)

		var err error
		if !extension.IsValidID(id) {
			err = fmt.Errorf("invalid extension id %q", id)
		} else {
			err = s.store.Uninstall(id)
		}

		outcome := metrics.OutcomeUninstalled
		if err != nil {
			outcome = metrics.OutcomeFailed
		} else {
			s.logger.Info("extension uninstalled", zap.String("id", id))
		}
		s.observe(metrics.KindUninstall, outcome, start)
		s.uninstalled(sink, id, err)
	}()
}

func (s *Service) uninstalled(sink Sink, id string, err error) {
	if err != nil {
		s.reporter.ReportUninstallError(id, err)
		s.logger.Warn("extension uninstall failed", zap.String("id", id), zap.Error(err))
	}
	if us, ok := sink.(UninstallSink); ok {
		s.loop.Post(func() { us.OnExtensionUninstalled(id, err) })
	}
}
