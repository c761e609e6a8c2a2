// Package service runs extension install, load and uninstall requests in the
// background and delivers their outcomes through the caller's event loop.
//
// Every request produces exactly one terminal notification. Package
// verification, extraction and manifest checks run concurrently; changes to
// the install directory are applied strictly in the order the requests were
// submitted.
package service
