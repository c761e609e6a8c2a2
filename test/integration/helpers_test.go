//go:build integration

package integration_test

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/eventloop"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/service"
	"github.com/agentx-labs/extmgr/internal/store"
)

// testEnv holds paths to isolated test directories.
type testEnv struct {
	HomeDir    string // HOME for the test
	InstallDir string // EXTMGR_INSTALL_ROOT, where records live
	SourceDir  string // unpacked extension sources and built packages
}

// setupTestEnv creates isolated temp directories and sets environment variables
// so all extmgr operations are sandboxed. The env vars are restored after the test.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		HomeDir:    t.TempDir(),
		InstallDir: t.TempDir(),
		SourceDir:  t.TempDir(),
	}

	t.Setenv("HOME", env.HomeDir)
	t.Setenv("EXTMGR_INSTALL_ROOT", env.InstallDir)
	return env
}

// harness drives a service and drains its event loop in the test goroutine.
type harness struct {
	svc  *service.Service
	loop *eventloop.Loop
	rec  *recorder
}

func newHarness(t *testing.T, env *testEnv) *harness {
	t.Helper()
	loop := eventloop.New()
	svc := service.New(store.New(env.InstallDir), loop, service.WithWorkers(4))
	t.Cleanup(svc.Close)
	return &harness{svc: svc, loop: loop, rec: &recorder{}}
}

// settle waits for the submitted requests and runs their callbacks.
func (h *harness) settle() {
	h.svc.Wait()
	h.loop.RunPending()
}

func (h *harness) install(path string) {
	h.svc.InstallExtension(path, h.rec)
	h.settle()
}

func (h *harness) loadAll(t *testing.T) []*extension.Extension {
	t.Helper()
	before := len(h.rec.loaded)
	h.svc.LoadExtensionsFromInstallDirectory(h.rec)
	h.settle()
	if len(h.rec.loaded) != before+1 {
		t.Fatalf("bulk load delivered %d times, want 1", len(h.rec.loaded)-before)
	}
	return h.rec.loaded[before]
}

// recorder is a sink that keeps every notification in arrival order.
type recorder struct {
	mu        sync.Mutex
	events    []string
	loaded    [][]*extension.Extension
	installed []*extension.Extension
	failures  []error
}

func (r *recorder) OnExtensionsLoaded(exts []*extension.Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("loaded:%d", len(exts)))
	r.loaded = append(r.loaded, exts)
}

func (r *recorder) OnExtensionInstalled(ext *extension.Extension, isUpgrade bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := "installed"
	if isUpgrade {
		kind = "upgraded"
	}
	r.events = append(r.events, kind+":"+ext.VersionString())
	r.installed = append(r.installed, ext)
}

func (r *recorder) OnExtensionVersionReinstalled(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "reinstalled:"+id)
}

func (r *recorder) OnExtensionLoadFailed(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "failed:"+filepath.Base(path))
	r.failures = append(r.failures, err)
}

func (r *recorder) OnExtensionUninstalled(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.events = append(r.events, "uninstalled:"+status)
}

var (
	keyOnce sync.Once
	keys    []*rsa.PrivateKey
	keyErr  error
)

// signingKey returns the n-th shared test key. Keys are generated once per
// test binary.
func signingKey(t *testing.T, n int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		for range 3 {
			k, err := crx.GenerateKey(1024)
			if err != nil {
				keyErr = err
				return
			}
			keys = append(keys, k)
		}
	})
	if keyErr != nil {
		t.Fatalf("generating keys: %v", keyErr)
	}
	return keys[n]
}

// writeExtension creates an unpacked extension under the source directory.
// extra is merged into the manifest.
func writeExtension(t *testing.T, env *testEnv, dirName, name, version string, extra map[string]any) string {
	t.Helper()
	dir := filepath.Join(env.SourceDir, dirName)

	doc := map[string]any{
		"name":    name,
		"version": version,
		"content_scripts": []map[string]any{
			{"matches": []string{"https://*.example.com/*"}, "js": []string{"js/content.js"}},
		},
		"permissions": []string{"https://api.example.com/*"},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("encoding manifest: %v", err)
	}

	writeFile(t, filepath.Join(dir, "manifest.json"), string(data))
	writeFile(t, filepath.Join(dir, "js", "content.js"), "document.title = 'x';\n")
	writeFile(t, filepath.Join(dir, "background.html"), "<html></html>\n")
	return dir
}

// packExtension signs srcDir with key and returns the package path.
func packExtension(t *testing.T, srcDir string, key *rsa.PrivateKey) string {
	t.Helper()
	var buf bytes.Buffer
	if err := crx.Pack(&buf, srcDir, key, crx.DefaultExcludes...); err != nil {
		t.Fatalf("packing %s: %v", srcDir, err)
	}
	path := srcDir + ".crx"
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// records lists the non-hidden directories of the install root.
func records(t *testing.T, env *testEnv) []string {
	t.Helper()
	entries, err := os.ReadDir(env.InstallDir)
	if err != nil {
		t.Fatalf("reading install root: %v", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out
}

// writeFile creates a file at the given path with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s (error: %v)", path, err)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file NOT to exist: %s", path)
	}
}

// assertDirExists fails the test if the directory does not exist.
func assertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected directory to exist: %s (error: %v)", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory, but it is a file", path)
	}
}

// assertFileContains fails if the file doesn't exist or doesn't contain substr.
func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q.\nContents:\n%s", path, substr, string(data))
	}
}
