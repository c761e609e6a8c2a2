// Package extension holds the immutable extension model built from a
// validated manifest, along with extension id derivation and generation.
package extension
