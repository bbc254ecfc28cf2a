// Package redisbus implements the latest-value broadcast channel on top of a
// Redis list, so the renderer can run in a separate process from the HTTP
// server.
//
// The list never grows past its capacity: pushes go through a Lua script that
// checks the length first. Draining reads the tail and deletes the key inside
// MULTI/EXEC. Every call is bounded by a short timeout.
package redisbus
