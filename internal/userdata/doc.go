// Package userdata resolves the per-user directories extmgr works in, most
// importantly the install root that holds every extension record.
package userdata
