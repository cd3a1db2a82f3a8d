// Package deriv defines the Deriv streaming API wire protocol.
//
// Every inbound frame is a JSON object tagged by a msg_type discriminator.
// Message kinds consumed by the relay: tick, proposal, transaction,
// authorize, balance, buy, profit_table, active_symbols.
//
// WebSocket endpoint:
//   - wss://ws.binaryws.com/websockets/v3?app_id=<app_id>
package deriv
