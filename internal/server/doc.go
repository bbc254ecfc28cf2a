// Package server provides the HTTP API of the LED simulator.
//
// This package is internal to ledsim and handles all HTTP concerns:
//
//   - LED control: "/configure_leds" applies on/off changes and publishes a
//     snapshot to the render channel
//   - Activation: "/start" drives the runner, "/events" streams its progress
//     as Server-Sent Events
//   - Inspection: "/api/state", "/health" and the position endpoints
//   - Dashboard: the embedded page at "/" and the preview websocket at "/ws"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the ledsim library should not need to interact with this package
// directly. The server is started automatically by [ledsim.Simulator.Start].
package server
