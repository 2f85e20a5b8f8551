// Package storage keeps an append-only audit log of broadcast runs.
//
// Two drivers exist: a JSON Lines file and SQLite. Both store run metadata
// and counts only.
package storage
