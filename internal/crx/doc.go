// Package crx reads and writes signed extension containers.
//
// A container is a 16 byte little-endian header followed by the publisher's
// public key, a signature and a zip payload:
//
//	"Cr24" | version (2) | key length | signature length | key | signature | zip
//
// The key is a DER encoded PKIX RSA public key and the signature is RSA
// PKCS#1 v1.5 over the SHA-256 digest of the payload. The extension id is
// derived from the key, so every release signed with the same key installs
// under the same id.
package crx
