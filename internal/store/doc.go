// Package store manages the on-disk install directory. Each extension id owns
// a record directory holding one subdirectory per installed version and a
// marker file naming the active one:
//
//	<root>/<id>/<version>/...
//	<root>/<id>/Current Version
//
// New records are assembled in <root>/.staging and published with a single
// rename, so a record is either absent or complete.
package store
