package service

import "github.com/agentx-labs/extmgr/internal/extension"

// Sink receives request outcomes. Methods are called on the goroutine that
// drains the service's event loop.
type Sink interface {
	// OnExtensionsLoaded delivers the result of a load request. A bulk load
	// calls it exactly once, possibly with an empty slice.
	OnExtensionsLoaded(exts []*extension.Extension)
	// OnExtensionInstalled reports a fresh install or a version change.
	OnExtensionInstalled(ext *extension.Extension, isUpgrade bool)
	// OnExtensionVersionReinstalled reports an install of the version that
	// was already current.
	OnExtensionVersionReinstalled(id string)
}

// FailureSink is implemented by sinks that want failed loads and installs
// in addition to the error reporter.
type FailureSink interface {
	OnExtensionLoadFailed(path string, err error)
}

// UninstallSink is implemented by sinks that want uninstall completions.
type UninstallSink interface {
	OnExtensionUninstalled(id string, err error)
}
