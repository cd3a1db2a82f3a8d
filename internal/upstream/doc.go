// Package upstream implements sessions to the Deriv streaming API.
//
// A Session is one logical WebSocket connection. Sessions come in two
// flavors at the call sites: long-lived per-symbol feed sessions, and
// disposable per-action authenticated sessions. The package itself does
// not distinguish them; owners drive the lifecycle.
//
// Each session runs a read loop that decodes frames into deriv.Envelope
// values, preserving per-session receipt order. Socket-level failures
// surface exactly once on Errors().
package upstream
