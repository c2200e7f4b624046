// Package sqlite keeps accounts, positions, the local index journal,
// scheduled task state and cycle history in one cloudpoll.db file.
// It uses modernc.org/sqlite, so the binary builds without cgo.
//
// The schema lives in migrations/ and is applied on open. The database
// runs in WAL mode with foreign keys on; deleting an account removes its
// position, index entries and history.
package sqlite
