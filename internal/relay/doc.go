// Package relay implements the broadcast relay.
//
// Every accepted WebSocket connection runs one session. A session reads
// envelopes in order and, for each one, either applies the route's handler
// or passes the payload through unchanged, then broadcasts the result to
// every connected client before reading the next frame.
//
// A frame that is not a valid envelope makes the relay broadcast a fixed
// error envelope to all clients, the sender included, and then ends the
// sender's session. Other sessions are not affected.
package relay
