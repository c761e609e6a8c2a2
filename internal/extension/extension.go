package extension

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/agentx-labs/extmgr/internal/exterr"
	"github.com/agentx-labs/extmgr/internal/manifest"
	"github.com/agentx-labs/extmgr/internal/urlpattern"
)

// Scheme is the URL scheme extension resources are served under.
const Scheme = "extension"

// BackgroundPage is the optional page an extension runs in the background.
const BackgroundPage = "background.html"

// Extension is a loaded extension. It is never modified after New returns;
// an upgrade produces a new value.
type Extension struct {
	id             string
	name           string
	description    string
	version        *semver.Version
	location       Location
	path           string
	contentScripts []ContentScript
	permissions    []urlpattern.Pattern
	toolstrips     []string
	pluginsDir     string
	hasBackground  bool
}

// ContentScript pairs URL patterns with the scripts injected into matching
// pages, in injection order.
type ContentScript struct {
	matches  []urlpattern.Pattern
	scripts  []string
	relative []string
}

// Matches returns the URL patterns the scripts apply to. Never empty.
func (c ContentScript) Matches() []urlpattern.Pattern {
	return append([]urlpattern.Pattern(nil), c.matches...)
}

// Scripts returns absolute script paths in injection order.
func (c ContentScript) Scripts() []string {
	return append([]string(nil), c.scripts...)
}

// RelativeScripts returns the script references as declared.
func (c ContentScript) RelativeScripts() []string {
	return append([]string(nil), c.relative...)
}

// New builds an Extension from a validated manifest rooted at root.
func New(m *manifest.Manifest, id string, loc Location, root string) (*Extension, error) {
	if !IsValidID(id) {
		return nil, exterr.New(exterr.InvalidManifest, manifest.KeyID, fmt.Errorf("%q is not a valid extension id", id))
	}
	if m == nil || m.Version == nil {
		return nil, exterr.New(exterr.InvalidManifest, manifest.KeyVersion, nil)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving extension root: %w", err)
	}

	ext := &Extension{
		id:          id,
		name:        m.Name,
		description: m.Description,
		version:     m.Version,
		location:    loc,
		path:        abs,
		permissions: append([]urlpattern.Pattern(nil), m.Permissions...),
		toolstrips:  append([]string(nil), m.Toolstrips...),
	}

	for _, s := range m.ContentScripts {
		cs := ContentScript{
			matches:  append([]urlpattern.Pattern(nil), s.Matches...),
			relative: append([]string(nil), s.JS...),
		}
		for _, js := range s.JS {
			cs.scripts = append(cs.scripts, filepath.Join(abs, filepath.FromSlash(js)))
		}
		ext.contentScripts = append(ext.contentScripts, cs)
	}

	if m.PluginsDir != "" {
		ext.pluginsDir = filepath.Join(abs, filepath.FromSlash(m.PluginsDir))
	}

	if info, err := os.Stat(filepath.Join(abs, BackgroundPage)); err == nil && info.Mode().IsRegular() {
		ext.hasBackground = true
	}

	return ext, nil
}

// ID returns the 40 character lowercase hex id.
func (e *Extension) ID() string { return e.id }

// Name returns the declared name.
func (e *Extension) Name() string { return e.name }

// Description returns the declared description, or "".
func (e *Extension) Description() string { return e.description }

// Version returns the parsed version.
func (e *Extension) Version() *semver.Version { return e.version }

// Location reports where the extension was loaded from.
func (e *Extension) Location() Location { return e.location }

// Path returns the absolute package root.
func (e *Extension) Path() string { return e.path }

// PluginsDir returns the absolute plugins directory, or "" if none is declared.
func (e *Extension) PluginsDir() string { return e.pluginsDir }

// VersionString returns the version as declared in the manifest.
func (e *Extension) VersionString() string {
	return e.version.Original()
}

// ContentScripts returns the content script rules in declaration order.
func (e *Extension) ContentScripts() []ContentScript {
	return append([]ContentScript(nil), e.contentScripts...)
}

// Permissions returns the host permissions in declaration order.
func (e *Extension) Permissions() []urlpattern.Pattern {
	return append([]urlpattern.Pattern(nil), e.permissions...)
}

// Toolstrips returns the toolstrip pages as declared.
func (e *Extension) Toolstrips() []string {
	return append([]string(nil), e.toolstrips...)
}

// URL returns the base URL of the extension, extension://<id>/.
func (e *Extension) URL() string {
	return Scheme + "://" + e.id + "/"
}

// ResourceURL returns the URL of a resource inside the extension.
func (e *Extension) ResourceURL(rel string) string {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	return Scheme + "://" + e.id + clean
}

// BackgroundURL returns the URL of background.html, or "" when the package
// does not ship one.
func (e *Extension) BackgroundURL() string {
	if !e.hasBackground {
		return ""
	}
	return e.ResourceURL(BackgroundPage)
}

func (e *Extension) String() string {
	return fmt.Sprintf("%s %s (%s)", e.name, e.version.Original(), e.id)
}
