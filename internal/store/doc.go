// Package store holds the LED state of the simulator.
//
// The main components are:
//
//   - [Store]: Interface used by the HTTP layer to change and read LED state
//   - [MemoryStore]: Mutex-guarded implementation with a fixed LED count
//   - [Snapshot]: Deep copy of all positions and activity flags, the unit
//     moved through the broadcast channel to the renderer
//
// The store never publishes anything itself. Callers take a [Snapshot] after
// an update and hand it to the broadcast channel.
package store
