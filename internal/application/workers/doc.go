// Package workers implements the bounded job queue that runs prompt
// orchestrations in the background.
//
// A fixed number of goroutines take jobs from the queue in submission order.
// Submit never blocks; a full queue is reported to the caller. The health
// monitor tracks worker status and records pool metrics.
package workers
