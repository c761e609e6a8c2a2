// Package manifest parses and validates extension manifests (manifest.json).
//
// Validation runs in a fixed order and stops at the first failure: the
// document must be a JSON object, the required fields must be present, every
// referenced file must exist below the package root, and finally the shape of
// each field is checked against the embedded JSON Schema and the URL pattern
// grammar. Failures are *exterr.Error values naming the offending key or file.
package manifest
