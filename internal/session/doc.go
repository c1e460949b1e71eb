// Package session provides typed create, read, update and delete operations
// for entities on top of txn scopes.
//
// Every mutation runs in a txn.Manager scope on the entity's datasource, so
// a mutation called inside an enclosing scope joins it and commits with it.
// Reads use the ambient transaction when one is in scope and the pool
// otherwise. Logically deleted rows (deleted = 1) are invisible to every
// select.
//
// Statements are written with '?' placeholders and rebound for the
// datasource's dialect.
package session
