// Package store groups the idempotency store implementations. Each records
// which posts already received a reply, keyed by post id, and reports a
// second insert for the same post as snapshot.ErrAlreadyRecorded.
package store
