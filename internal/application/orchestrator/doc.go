// Package orchestrator implements the care coordination pipeline.
//
// A request moves through four stages:
//   - Validator checks the MCP/ACL task graph and extracts one plan entry per action
//   - Sequencer orders the plan by data dependency, then by priority band
//   - Dispatcher calls the agent for each task in order, threading intermediate
//     results forward and isolating per-task failures
//   - Aggregator projects the results onto normalized per-agent outputs
//
// Manager wraps the pipeline with session state, progress events and
// asynchronous prompt runs for polling clients.
package orchestrator
