package domain

import "errors"

// Sentinel errors for the revault core.
// Callers check with errors.Is; call sites add context with fmt.Errorf("…: %w", err).
var (
	// ErrNotFound: a card, queue, schedule or orphan referenced by path/id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the operation would duplicate an existing record
	// (schedule for an (item, queue) pair, queue name, relink target).
	ErrConflict = errors.New("conflict")

	// ErrInvalidState: the operation is not legal in the current state
	// (session operations while idle, undo with an empty stack, out-of-order rollback).
	ErrInvalidState = errors.New("invalid state")

	// ErrExternalInconsistency: the vault disagrees with our records
	// (the note under the session cursor no longer exists). Recoverable.
	ErrExternalInconsistency = errors.New("external inconsistency")

	// ErrCorruptedDocument: the persisted document failed to load structurally.
	// The store recovers by preserving the bad file and starting from defaults.
	ErrCorruptedDocument = errors.New("corrupted document")
)
