// Package hub implements the downstream topic broadcast primitive.
//
// Topics are named broadcast groups: instrument topics (keyed by symbol)
// fan out market data, user topics (keyed by loginid) fan out account and
// trade events. Components publish through the Broadcaster interface and
// never touch client connections directly.
package hub
