// Package domain holds the types shared by the orchestration core, its
// adapters and the API layer: task graphs, plan entries, dispatch results,
// sessions and events.
package domain
