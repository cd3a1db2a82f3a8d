// Package account implements the authenticated action orchestrator.
//
// Each user-initiated action (balance fetch, top-up, purchase, history
// fetch, login) opens a fresh disposable upstream session and runs a
// short authorize-then-act message sequence. Results fan out to the
// user's topic; the session is closed once the flow reaches a terminal
// state. Independent invocations never share state, even for the same
// user.
package account
