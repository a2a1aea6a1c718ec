// Package storage provides session store implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and optional TTL
//   - memory: process-lifetime map, the default
package storage
