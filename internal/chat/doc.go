// ABOUTME: Package documentation for the chat package
// ABOUTME: Describes turn serialization, accumulation, and commit semantics

// Package chat runs chat turns against the remote AI platform.
//
// A turn is: persist the user message, replay the full conversation history
// to the remote session, stream assistant fragments back to the caller, and
// commit the accumulated reply as one assistant message when the stream
// completes.
//
// Persistence comes first. The user message is saved before the remote call
// so the transcript records what the user said even when the platform fails.
// The assistant reply is accumulated fragment by fragment and committed
// exactly once:
//
//   - The stream completes: commit the full reply, emit Done.
//   - The stream fails mid-turn: discard the accumulator, emit Error. The
//     user message stays.
//   - The caller disconnects: stop forwarding, commit the partial reply.
//     What the assistant already said is part of the record.
//
// Turns on the same conversation are serialized by a per-conversation lock
// held for the whole turn, so interleaved requests cannot corrupt the
// history order. Different conversations proceed in parallel.
package chat
