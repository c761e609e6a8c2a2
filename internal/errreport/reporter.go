// Package errreport collects user-facing error messages produced while
// loading and installing extensions. The host decides when to show them.
package errreport

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/exterr"
)

// Reporter accumulates messages in the order they were reported. It is safe
// for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	messages []string
	logger   *zap.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger echoes every reported message to l at warn level.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// New returns an empty Reporter.
func New(opts ...Option) *Reporter {
	r := &Reporter{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records msg.
func (r *Reporter) Report(msg string) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Warn(msg)
	}
}

// ReportLoadError records a failure to load or install the package at path.
func (r *Reporter) ReportLoadError(path string, err error) {
	r.Report(LoadErrorMessage(path, err))
}

// ReportUninstallError records a failure to remove the extension id.
func (r *Reporter) ReportUninstallError(id string, err error) {
	r.Report(UninstallErrorMessage(id, err))
}

// Errors returns a copy of the recorded messages, oldest first.
func (r *Reporter) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Len returns the number of recorded messages.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Clear discards every recorded message.
func (r *Reporter) Clear() {
	r.mu.Lock()
	r.messages = nil
	r.mu.Unlock()
}

// LoadErrorMessage formats the diagnostic for a package that failed to load.
func LoadErrorMessage(path string, err error) string {
	return fmt.Sprintf("Could not load extension from '%s'. %s", path, exterr.Reason(err))
}

// UninstallErrorMessage formats the diagnostic for a failed uninstall.
func UninstallErrorMessage(id string, err error) string {
	return fmt.Sprintf("Could not uninstall extension '%s'. %s", id, exterr.Reason(err))
}
