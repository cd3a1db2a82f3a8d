// Package gateway maps downstream client traffic onto the relay core.
//
// It exposes one WebSocket endpoint carrying event frames (join/leave
// asset rooms, purchase, balance, top-up, history) and two REST
// endpoints (instrument catalogue, credential login). The gateway holds
// no state of its own; it validates payloads and forwards.
package gateway
