package service

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentx-labs/extmgr/internal/errreport"
	"github.com/agentx-labs/extmgr/internal/eventloop"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/metrics"
	"github.com/agentx-labs/extmgr/internal/store"
)

// ErrClosed is the failure delivered for requests submitted after Close.
var ErrClosed = errors.New("extension service is closed")

// Service orchestrates extension requests against a store.
type Service struct {
	store    *store.Store
	loop     *eventloop.Loop
	reporter *errreport.Reporter
	ids      *extension.IDGenerator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	workers  int

	// prepare bounds the concurrent verification and parsing work.
	prepare *errgroup.Group
	seq     *sequencer

	mu      sync.Mutex
	idle    *sync.Cond
	closed  bool
	pending int
}

// Option configures a Service.
type Option func(*Service)

// WithReporter sets the error reporter failures are recorded in.
func WithReporter(r *errreport.Reporter) Option {
	return func(s *Service) { s.reporter = r }
}

// WithIDGenerator sets the generator used for unpacked extensions that do
// not declare an id.
func WithIDGenerator(g *extension.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithWorkers bounds how many packages are verified and parsed at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New returns a Service that applies changes to st and posts notifications
// to loop.
func New(st *store.Store, loop *eventloop.Loop, opts ...Option) *Service {
	s := &Service{
		store:   st,
		loop:    loop,
		logger:  zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
		seq:     newSequencer(),
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = errreport.New()
	}
	if s.ids == nil {
		s.ids = extension.NewIDGenerator()
	}
	s.prepare = new(errgroup.Group)
	s.prepare.SetLimit(s.workers)
	return s
}

// Reporter returns the error reporter failures are recorded in.
func (s *Service) Reporter() *errreport.Reporter {
	return s.reporter
}

// Store returns the store the service manages.
func (s *Service) Store() *store.Store {
	return s.store
}

// Wait blocks until every submitted request has posted its notification.
// Requests may be submitted while another goroutine waits; Wait returns once
// none are pending.
func (s *Service) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// Close refuses new requests and waits for the accepted ones.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Wait()
}

// begin registers a request. It reports false once the service is closed.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.pending++
	return true
}

// done releases a request registered by begin.
func (s *Service) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

// limited runs fn within the worker bound and waits for it. It must not be
// called while holding a sequencer turn.
func (s *Service) limited(fn func()) {
	done := make(chan struct{})
	s.prepare.Go(func() error {
		defer close(done)
		fn()
		return nil
	})
	<-done
}

// fail records err for path and posts the failure to sink.
func (s *Service) fail(sink Sink, path string, err error) {
	s.reporter.ReportLoadError(path, err)
	s.metrics.ObserveLoadError(err)
	s.logger.Warn("extension request failed", zap.String("path", path), zap.Error(err))

	if fs, ok := sink.(FailureSink); ok {
		s.loop.Post(func() { fs.OnExtensionLoadFailed(path, err) })
	}
}

func (s *Service) observe(kind, outcome string, start time.Time) {
	s.metrics.ObserveRequest(kind, outcome, time.Since(start))
}
