package userdata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentx-labs/extmgr/internal/branding"
)

// ExtensionsDir is the install root's name under the home directory.
const ExtensionsDir = "extensions"

// Permission constants.
const (
	DirPermSecure  os.FileMode = 0700
	FilePermSecure os.FileMode = 0600
	DirPermNormal  os.FileMode = 0755
)

// GetInstallRoot returns the directory extension records are stored in.
// It checks the EXTMGR_INSTALL_ROOT environment variable first,
// then falls back to ~/.extmgr/extensions.
func GetInstallRoot() (string, error) {
	if v := os.Getenv(branding.EnvVar("INSTALL_ROOT")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, branding.HomeDir(), ExtensionsDir), nil
}

// ResolveInstallRoot returns configured when it is set, else the default
// install root. Relative paths are made absolute.
func ResolveInstallRoot(configured string) (string, error) {
	root := configured
	if root == "" {
		var err error
		if root, err = GetInstallRoot(); err != nil {
			return "", err
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving install root %s: %w", root, err)
	}
	return abs, nil
}

// EnsureInstallRoot creates root if it does not exist.
func EnsureInstallRoot(root string) error {
	if err := os.MkdirAll(root, DirPermNormal); err != nil {
		return fmt.Errorf("creating install root %s: %w", root, err)
	}
	return nil
}
