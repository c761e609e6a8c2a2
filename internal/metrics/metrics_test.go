package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx-labs/extmgr/internal/exterr"
)

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest(KindInstall, "installed", 10*time.Millisecond)
	m.ObserveRequest(KindInstall, "installed", 20*time.Millisecond)
	m.ObserveRequest(KindInstall, OutcomeFailed, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(KindInstall, "installed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(KindInstall, OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestObserveLoadError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveLoadError(exterr.New(exterr.MissingFile, "a.js", nil))
	m.ObserveLoadError(exterr.New(exterr.MissingFile, "b.js", nil))
	m.ObserveLoadError(errors.New("boom"))
	m.ObserveLoadError(nil)

	expected := `
# HELP extmgr_load_errors_total Total number of extension load failures by reason
# TYPE extmgr_load_errors_total counter
extmgr_load_errors_total{reason="missing_file"} 2
extmgr_load_errors_total{reason="other"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "extmgr_load_errors_total"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(KindLoad, OutcomeLoaded, time.Second)
	m.ObserveLoadError(errors.New("ignored"))
}
