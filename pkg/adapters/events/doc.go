// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, every subscriber reads the whole stream
//   - memory: in-process fan-out with a queue per subscriber
package events
