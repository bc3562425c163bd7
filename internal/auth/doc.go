// ABOUTME: Package documentation for the auth package
// ABOUTME: JWT verification, revocation epoch, and HTTP middleware

// Package auth authenticates API requests with HS256 JWTs.
//
// Tokens carry the user id in the "sub" claim. Verification additionally
// checks the revocation epoch: a token issued ("iat") before the configured
// epoch is rejected, so rotating the epoch invalidates every outstanding
// token without tracking individual sessions. The epoch is injected as a
// function so deployments can source it from configuration or an admin
// action.
//
// Middleware wraps HTTP handlers, verifies the bearer token, confirms the
// user still exists, and attaches the identity to the request context for
// handlers to read via UserFromContext.
package auth
