// ABOUTME: Package documentation for the session package
// ABOUTME: Explains the lifecycle state machine and error taxonomy

// Package session orchestrates the lifecycle of AI practice sessions.
//
// A session binds a local conversation record to a remote platform session.
// Conversations move through a strict state machine:
//
//	CREATED -> ACTIVE -> ENDED
//
// CreateSession produces a CREATED conversation bound to a fresh remote
// session. StartSession notifies the platform and advances to ACTIVE; chat
// turns are only accepted while ACTIVE. EndSession notifies the platform and
// advances to ENDED. Ending an already ENDED session is a no-op so that
// clients can retry safely.
//
// Session settings are resolved by overlaying caller overrides onto the
// bot's stored defaults. When a previous conversation id is supplied, a
// summary of its recent transcript travels with the remote create request
// and the existing conversation record is rebound to the new remote session.
//
// All failures are wrapped in *Error carrying a stable machine-readable Kind
// so transports can map them to status codes without string matching.
package session
