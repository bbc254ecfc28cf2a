// Package remote is an HTTP client for a running LED simulator.
//
// It is used by the ledsim command's controller subcommands (tail, poke) and
// by the example program. The main components are:
//
//   - [Client]: pooled HTTP client for the simulator's JSON API
//   - [Client.Events]: reader for the /events Server-Sent Events stream
//   - [ParseEvent]: decoder for a single SSE line
package remote
