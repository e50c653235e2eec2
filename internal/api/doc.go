// Package api implements the optional HTTP surface of statuslogger.
//
// Endpoints:
//   - GET /health  200 {"status":"ok"} while the broker connection is up, 503 otherwise
//   - GET /metrics runtime statistics and record counters
//   - GET /stream  WebSocket feed of sink records as they are written
//
// The server is off by default and binds to loopback when enabled. There is
// no authentication.
//
// # Record stream
//
// Sinks are wrapped with Hub.Tee so that every record written to a file is
// also broadcast on the "messages" or "errors" channel:
//
//	messages := hub.Tee(api.ChannelMessages, messageSink)
//
// Clients choose channels with ?channels=messages,errors and may change them
// later by sending {"type":"subscribe","payload":{"channels":["errors"]}}.
// A client that cannot keep up misses records; the sinks never wait for it.
package api
