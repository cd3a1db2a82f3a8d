// Package feed implements the market-data multiplexer.
//
// The multiplexer owns at most one upstream session per instrument
// symbol. The first subscriber for a symbol opens the session; later
// subscribers share it. Each session feeds the instrument's topic:
// ticks are rebroadcast as-is, and every tick triggers a CALL and a PUT
// pricing request whose quotes are rebroadcast tagged by direction.
//
// Unsubscribe tears the shared session down unconditionally, matching
// the relay's documented semantics.
package feed
