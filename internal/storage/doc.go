// Package storage persists completion history for finished tasks and
// sessions.
//
// The session engine never reads from here during a run; storage is a
// write-behind collaborator. A failed write is surfaced to the caller but
// must never roll back in-memory session state.
package storage
