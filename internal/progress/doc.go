// Package progress carries activation progress events from the runner to the
// event stream.
//
// The runner publishes [Event] values ("Index(i)" per step, then "Done") to a
// [Publisher]. Stream handlers obtain a [Reader] from a [Source] and poll it
// on a fixed interval.
//
// Two sources are provided:
//
//   - [Outbox]: one shared queue, each event consumed by exactly one reader
//   - [Fanout]: one queue per reader, every reader sees every event
package progress
