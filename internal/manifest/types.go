package manifest

import (
	"github.com/Masterminds/semver/v3"

	"github.com/agentx-labs/extmgr/internal/urlpattern"
)

// FileName is the manifest file expected at the root of every package.
const FileName = "manifest.json"

// Manifest keys.
const (
	KeyID             = "id"
	KeyName           = "name"
	KeyVersion        = "version"
	KeyDescription    = "description"
	KeyContentScripts = "content_scripts"
	KeyMatches        = "matches"
	KeyJS             = "js"
	KeyPermissions    = "permissions"
	KeyToolstrips     = "toolstrips"
	KeyPluginsDir     = "plugins_dir"
)

// Manifest is a validated manifest. File references are relative to the
// package root, in slash form, exactly as declared.
type Manifest struct {
	ID             string
	Name           string
	Description    string
	Version        *semver.Version
	ContentScripts []ContentScript
	Permissions    []urlpattern.Pattern
	Toolstrips     []string
	PluginsDir     string
}

// ContentScript is one script injection rule.
type ContentScript struct {
	Matches []urlpattern.Pattern
	JS      []string
}

// document mirrors manifest.json. It is only decoded after the raw document
// passed schema validation.
type document struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Version        string           `json:"version"`
	Description    string           `json:"description"`
	ContentScripts []scriptDocument `json:"content_scripts"`
	Permissions    []string         `json:"permissions"`
	Toolstrips     []string         `json:"toolstrips"`
	PluginsDir     string           `json:"plugins_dir"`
}

type scriptDocument struct {
	Matches []string `json:"matches"`
	JS      []string `json:"js"`
}
