// ABOUTME: Package documentation for the gateway package
// ABOUTME: Describes the HTTP surface and its error contract

// Package gateway is the HTTP surface of interview-gateway.
//
// It wires the store, the remote platform client, the session orchestrator,
// and the chat pipeline behind a net/http ServeMux. Endpoints:
//
//	POST   /api/sessions/create                    create a session
//	POST   /api/chat/session/{sessionId}/start     start it
//	DELETE /api/chat/session/{sessionId}           end it
//	POST   /api/chat/message                       chat turn, streamed as SSE
//	POST   /api/chat/message/simple                chat turn, single response
//	GET    /api/chat/history/{conversationId}      transcript (?format=html)
//	GET    /api/chat/rooms                         caller's conversations
//	GET    /api/bots                               active bot configurations
//	GET    /api/catalog/{prompts|documents|modelstyles|aimodels}
//	GET    /health, /health/ready
//
// Everything under /api/ requires a bearer token; handlers additionally check
// that the session or conversation belongs to the caller.
//
// Failures are returned as {"error": {"kind": ..., "message": ...}} with the
// kind taken from the session error taxonomy, and as "error" SSE events once
// a stream has started.
package gateway
