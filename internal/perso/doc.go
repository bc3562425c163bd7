// Package perso is the adapter for the Perso AI platform's session API.
//
// # Overview
//
// The package knows transport only: how to create, start, end, and delete
// remote sessions, how to stream a chat turn, and how to read the platform's
// configuration catalog. It holds no conversation state and never touches
// persistence.
//
// # Session lifecycle
//
//	id, err := client.CreateSession(ctx, cfg)       // POST /api/v1/session/
//	err = client.SendEvent(ctx, id, EventSessionStart, "")
//	events, err := client.ChatStream(ctx, id, history)
//	err = client.SendEvent(ctx, id, EventSessionEnd, "")
//
// Session creation retries transparently: server errors, network failures,
// and one known intermittent platform validation bug are retried with a
// fixed delay; other client errors fail immediately.
//
// # Chat streaming
//
// ChatStream posts the full role/content history (the platform is stateless
// per call) and returns a bounded channel of StreamEvents. The SSE body is
// parsed line by line; the literal [DONE] sentinel closes the stream and is
// never surfaced as a fragment. Fragment text is extracted by an ordered
// list of shape extractors (sentence, content, text, delta.content,
// choices[0].delta.content); payloads matching no shape are logged and
// skipped, never fatal.
package perso
