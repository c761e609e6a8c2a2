//go:build integration

package integration_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentx-labs/extmgr/internal/crx"
	"github.com/agentx-labs/extmgr/internal/exterr"
	"github.com/agentx-labs/extmgr/internal/extension"
	"github.com/agentx-labs/extmgr/internal/store"
)

// TestFullFlowInstallLoadUninstall tests the complete flow:
// install packages -> bulk load with a broken record -> uninstall -> reload.
func TestFullFlowInstallLoadUninstall(t *testing.T) {
	env := setupTestEnv(t)
	h := newHarness(t, env)

	// Step 1: Install two extensions signed with different keys.
	for i, name := range []string{"Beta", "Alpha"} {
		src := writeExtension(t, env, strings.ToLower(name), name, "1.0.0", nil)
		h.svc.InstallExtension(packExtension(t, src, signingKey(t, i)), h.rec)
	}
	h.settle()
	if len(h.rec.installed) != 2 {
		t.Fatalf("expected 2 installs, got events %v", h.rec.events)
	}

	// Step 2: Plant a record whose manifest lacks a version.
	brokenID := extension.IDFromPublicKey([]byte("broken"))
	brokenDir := filepath.Join(env.InstallDir, brokenID, "1.0.0")
	writeFile(t, filepath.Join(env.InstallDir, brokenID, store.MarkerFile), "1.0.0")
	writeFile(t, filepath.Join(brokenDir, "manifest.json"), `{"name": "Broken"}`)

	// Step 3: Bulk load delivers the good ones sorted by name and reports the broken one.
	exts := h.loadAll(t)
	if len(exts) != 2 || exts[0].Name() != "Alpha" || exts[1].Name() != "Beta" {
		t.Fatalf("unexpected bulk load result %v", exts)
	}
	var e *exterr.Error
	if len(h.rec.failures) != 1 || !errors.As(h.rec.failures[0], &e) || e.Kind != exterr.InvalidManifest || e.Subject != "version" {
		t.Fatalf("expected one invalid version failure, got %v", h.rec.failures)
	}
	msgs := h.svc.Reporter().Errors()
	if len(msgs) != 1 || !strings.Contains(msgs[0], brokenDir) {
		t.Errorf("expected the report to name %s, got %v", brokenDir, msgs)
	}

	// Step 4: Uninstall everything, twice; the second round is a no-op.
	for range 2 {
		for _, ext := range exts {
			h.svc.UninstallExtension(ext.ID(), h.rec)
		}
		h.svc.UninstallExtension(brokenID, h.rec)
		h.settle()
	}
	if got := records(t, env); len(got) != 0 {
		t.Errorf("expected no records after uninstall, got %v", got)
	}
	for _, ev := range h.rec.events {
		if ev == "uninstalled:error" {
			t.Errorf("unexpected uninstall failure in %v", h.rec.events)
		}
	}

	// Step 5: Reload sees an empty store.
	if exts := h.loadAll(t); len(exts) != 0 {
		t.Errorf("expected empty store, got %v", exts)
	}
}

// TestFullFlowUnpackedLoad verifies that unpacked extensions without a
// declared id get sequential ids and are loaded in place.
func TestFullFlowUnpackedLoad(t *testing.T) {
	env := setupTestEnv(t)
	h := newHarness(t, env)

	src := writeExtension(t, env, "dev", "Dev", "0.1.0", nil)
	h.svc.LoadExtension(src, h.rec)
	h.settle()
	h.svc.LoadExtension(src, h.rec)
	h.settle()

	if len(h.rec.loaded) != 2 {
		t.Fatalf("expected 2 loads, got events %v", h.rec.events)
	}
	first, second := h.rec.loaded[0][0], h.rec.loaded[1][0]
	if first.ID() != strings.Repeat("0", 40) || second.ID() != strings.Repeat("0", 39)+"1" {
		t.Errorf("ids = %s, %s", first.ID(), second.ID())
	}
	if first.Location() != extension.Load || first.Path() != src {
		t.Errorf("unexpected location %s or path %s", first.Location(), first.Path())
	}
	if got := records(t, env); len(got) != 0 {
		t.Errorf("unpacked load must not touch the store, got %v", got)
	}
}

// TestFullFlowPackRoundTrip verifies that an extracted package matches its
// source tree byte for byte and that the id follows the key.
func TestFullFlowPackRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	key := signingKey(t, 2)
	src := writeExtension(t, env, "rt", "RoundTrip", "3.0.0", nil)
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref: refs/heads/main\n")

	c, err := crx.Open(packExtension(t, src, key))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	out := t.TempDir()
	if err := c.Extract(out); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for _, rel := range []string{"manifest.json", "background.html", filepath.Join("js", "content.js")} {
		want, err := os.ReadFile(filepath.Join(src, rel))
		if err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(filepath.Join(out, rel))
		if err != nil {
			t.Errorf("reading extracted %s: %v", rel, err)
			continue
		}
		if string(got) != string(want) {
			t.Errorf("%s differs after round trip", rel)
		}
	}
	assertFileNotExists(t, filepath.Join(out, ".git"))

	again, err := crx.Open(packExtension(t, src, key))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if again.ID() != c.ID() {
		t.Errorf("same key produced ids %s and %s", c.ID(), again.ID())
	}
}
