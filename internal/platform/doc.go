// Package platform provides filesystem operations the store relies on:
// directory moves that survive crossing devices, recursive copies, atomic
// file replacement, and permission management that is a no-op on Windows.
package platform
