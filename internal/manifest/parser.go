package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentx-labs/extmgr/internal/exterr"
	"github.com/agentx-labs/extmgr/internal/urlpattern"
)

// Load reads root/manifest.json and parses it against root.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return nil, exterr.New(exterr.CannotReadFile, FileName, err)
	}
	return Parse(data, root)
}

// Parse validates a manifest document whose file references are resolved
// against root. It returns the first failure as an *exterr.Error.
func Parse(data []byte, root string) (*Manifest, error) {
	raw, err := decodeRoot(data)
	if err != nil {
		return nil, err
	}

	version, err := checkRequired(raw)
	if err != nil {
		return nil, err
	}

	if err := checkFiles(raw, root); err != nil {
		return nil, err
	}

	result, err := validateInstance(raw)
	if err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}
	if !result.Valid {
		first := result.Issues[0]
		return nil, exterr.New(exterr.InvalidManifest, first.Key(), errors.New(first.Message))
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, exterr.New(exterr.InvalidManifest, "manifest", err)
	}

	return build(&doc, version, root)
}

// decodeRoot decodes data and requires an object at the root.
func decodeRoot(data []byte) (map[string]any, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, exterr.New(exterr.BadRootElementType, "", err)
	}
	raw, ok := inst.(map[string]any)
	if !ok {
		return nil, exterr.New(exterr.BadRootElementType, "", nil)
	}
	return raw, nil
}

// checkRequired verifies the fields every manifest must declare.
func checkRequired(raw map[string]any) (*semver.Version, error) {
	name, ok := raw[KeyName].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, exterr.New(exterr.InvalidManifest, KeyName, nil)
	}

	vs, ok := raw[KeyVersion].(string)
	if !ok {
		return nil, exterr.New(exterr.InvalidManifest, KeyVersion, nil)
	}
	version, err := semver.NewVersion(vs)
	if err != nil {
		return nil, exterr.New(exterr.InvalidManifest, KeyVersion, err)
	}
	return version, nil
}

type fileRef struct {
	key string
	ref string
	dir bool
}

// fileRefs collects every string file reference in declaration order.
// Values of the wrong shape are left for schema validation.
func fileRefs(raw map[string]any) []fileRef {
	var refs []fileRef

	if scripts, ok := raw[KeyContentScripts].([]any); ok {
		for i, s := range scripts {
			obj, ok := s.(map[string]any)
			if !ok {
				continue
			}
			js, ok := obj[KeyJS].([]any)
			if !ok {
				continue
			}
			for j, v := range js {
				if ref, ok := v.(string); ok && ref != "" {
					refs = append(refs, fileRef{key: fmt.Sprintf("%s[%d].%s[%d]", KeyContentScripts, i, KeyJS, j), ref: ref})
				}
			}
		}
	}

	if strips, ok := raw[KeyToolstrips].([]any); ok {
		for i, v := range strips {
			if ref, ok := v.(string); ok && ref != "" {
				refs = append(refs, fileRef{key: fmt.Sprintf("%s[%d]", KeyToolstrips, i), ref: ref})
			}
		}
	}

	if dir, ok := raw[KeyPluginsDir].(string); ok && dir != "" {
		refs = append(refs, fileRef{key: KeyPluginsDir, ref: dir, dir: true})
	}

	return refs
}

// checkFiles stats every local file reference below root.
func checkFiles(raw map[string]any, root string) error {
	for _, r := range fileRefs(raw) {
		if !isLocalRef(r.ref) {
			continue
		}
		if _, err := os.Stat(resolve(root, r.ref)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return exterr.New(exterr.MissingFile, r.ref, err)
			}
			return exterr.New(exterr.CannotReadFile, r.ref, err)
		}
	}
	return nil
}

// build converts a schema-valid document into a Manifest, checking the
// constraints the schema cannot express.
func build(doc *document, version *semver.Version, root string) (*Manifest, error) {
	m := &Manifest{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Version:     version,
		Toolstrips:  doc.Toolstrips,
		PluginsDir:  doc.PluginsDir,
	}

	for i, s := range doc.ContentScripts {
		script := ContentScript{JS: s.JS}
		for j, raw := range s.Matches {
			p, err := urlpattern.Parse(raw)
			if err != nil {
				return nil, exterr.New(exterr.InvalidManifest, fmt.Sprintf("%s[%d].%s[%d]", KeyContentScripts, i, KeyMatches, j), err)
			}
			script.Matches = append(script.Matches, p)
		}
		for j, ref := range s.JS {
			if err := checkLocalFile(root, ref, false); err != nil {
				return nil, exterr.New(exterr.InvalidManifest, fmt.Sprintf("%s[%d].%s[%d]", KeyContentScripts, i, KeyJS, j), err)
			}
		}
		m.ContentScripts = append(m.ContentScripts, script)
	}

	for i, raw := range doc.Permissions {
		p, err := urlpattern.Parse(raw)
		if err != nil {
			return nil, exterr.New(exterr.InvalidManifest, fmt.Sprintf("%s[%d]", KeyPermissions, i), err)
		}
		m.Permissions = append(m.Permissions, p)
	}

	for i, ref := range doc.Toolstrips {
		if err := checkLocalFile(root, ref, false); err != nil {
			return nil, exterr.New(exterr.InvalidManifest, fmt.Sprintf("%s[%d]", KeyToolstrips, i), err)
		}
	}

	if doc.PluginsDir != "" {
		if err := checkLocalFile(root, doc.PluginsDir, true); err != nil {
			return nil, exterr.New(exterr.InvalidManifest, KeyPluginsDir, err)
		}
	}

	return m, nil
}

// checkLocalFile requires ref to stay inside root and name a regular file,
// or a directory when dir is set.
func checkLocalFile(root, ref string, dir bool) error {
	if !isLocalRef(ref) {
		return fmt.Errorf("%q is not a path inside the package", ref)
	}
	info, err := os.Stat(resolve(root, ref))
	if err != nil {
		return err
	}
	if dir && !info.IsDir() {
		return fmt.Errorf("%q is not a directory", ref)
	}
	if !dir && !info.Mode().IsRegular() {
		return fmt.Errorf("%q is not a regular file", ref)
	}
	return nil
}

func isLocalRef(ref string) bool {
	return filepath.IsLocal(filepath.FromSlash(ref))
}

func resolve(root, ref string) string {
	return filepath.Join(root, filepath.FromSlash(ref))
}
