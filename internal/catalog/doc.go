// Package catalog fetches the tradable instrument catalogue.
//
// Each fetch opens a throwaway upstream session, requests the full
// active_symbols list once, and resolves with the payload or a bounded
// timeout. Concurrent callers are deduplicated through singleflight so
// a burst of requests costs one upstream round-trip.
package catalog
