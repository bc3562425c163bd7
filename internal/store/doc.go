// Package store provides persistence for conversations, messages, users,
// and bot configurations.
//
// # Overview
//
// The store is the source of truth for conversation history. A Conversation
// is the durable record of one interview dialogue; its Messages form a
// strictly ordered append-only log. The SQLite implementation keeps a
// per-row sequence number so replay order never depends on timestamp
// resolution, and clamps message timestamps to be non-decreasing within a
// conversation.
//
// # Lifecycle fields
//
// Conversations carry their lifecycle status (CREATED, ACTIVE, ENDED) plus
// the transition timestamps started_at and ended_at. Rows are never deleted
// by this package; ending a session leaves the conversation ENDED with its
// full message log intact.
//
// # Context summaries
//
// BuildContextSummary produces a bounded, role-labelled transcript of a
// prior conversation used to seed a continuation session. It truncates,
// it does not summarize.
package store
