// Package broadcast provides the latest-value channel between the LED state
// producer and the renderer.
//
// A [Channel] is bounded and lossy: the producer never waits for
// the consumer, and the consumer only ever acts on the newest value. Values
// rejected because the buffer is full are lost; any later value supersedes
// them.
//
// [Latest] is the in-process implementation. The redisbus package provides a
// cross-process one with the same contract.
package broadcast
