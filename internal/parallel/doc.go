// Package parallel provides the concurrency infrastructure of the block
// renderer.
//
// WorkerPool runs tasks on a fixed set of goroutines with per-worker queues
// and work stealing. Broadcast starts one long-running task per worker,
// which is how render workers pull blocks from a shared scheduler.
//
// SizedPool recycles buffers keyed by their dimensions, so that edge blocks
// of a different size do not evict the full-size ones.
//
// DirtyRegion is a lock-free bitmap of block-sized regions that were
// written since the last GetAndClear.
package parallel
