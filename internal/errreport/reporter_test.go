package errreport

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/agentx-labs/extmgr/internal/exterr"
)

func TestReportLoadError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing file",
			err:  exterr.New(exterr.MissingFile, "script.js", nil),
			want: "Could not load extension from '/ext/bad'. Required file is missing: 'script.js'.",
		},
		{
			name: "invalid key",
			err:  exterr.New(exterr.InvalidManifest, "content_scripts[0].matches", nil),
			want: "Could not load extension from '/ext/bad'. Invalid value for 'content_scripts[0].matches'.",
		},
		{
			name: "bad root",
			err:  exterr.New(exterr.BadRootElementType, "", nil),
			want: "Could not load extension from '/ext/bad'. Manifest is not valid JSON. Root value must be an object.",
		},
		{
			name: "wrapped",
			err:  errors.Join(errors.New("context"), exterr.New(exterr.CannotReadFile, "Current Version", nil)),
			want: "Could not load extension from '/ext/bad'. Could not read 'Current Version' file.",
		},
		{
			name: "plain error",
			err:  errors.New("disk on fire"),
			want: "Could not load extension from '/ext/bad'. disk on fire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.ReportLoadError("/ext/bad", tt.err)
			assert.Equal(t, []string{tt.want}, r.Errors())
		})
	}
}

func TestReportUninstallError(t *testing.T) {
	r := New()
	r.ReportUninstallError("abc", errors.New("permission denied"))
	assert.Equal(t, []string{"Could not uninstall extension 'abc'. permission denied"}, r.Errors())
}

func TestErrorsIsACopy(t *testing.T) {
	r := New()
	r.Report("first")
	r.Report("second")

	got := r.Errors()
	got[0] = "mutated"
	assert.Equal(t, []string{"first", "second"}, r.Errors())
	assert.Equal(t, 2, r.Len())

	r.Clear()
	assert.Empty(t, r.Errors())
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentReports(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Report("x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestWithLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(WithLogger(zap.New(core)))

	r.Report("something broke")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "something broke", logs.All()[0].Message)
}
