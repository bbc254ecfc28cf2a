// Package render runs the snapshot consumer loop.
//
// A [Loop] ticks at a fixed interval, drains the newest [store.Snapshot] from
// the broadcast channel and pushes it into a [Sink]. The loop is the only
// reader of the channel and never blocks the producer.
//
// Concrete sinks live in the preview (browser over websocket) and strip
// (physical or console LED strip) packages. [Multi] combines several.
package render
