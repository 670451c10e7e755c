// Package watcher keeps checkpointed long-running operations moving.
//
// A Watcher lists a checkpoint.Store, resumes every stored token through an
// lro.Dispatcher and polls each operation to a terminal status, bounded by
// Options.MaxConcurrent. The token is saved again after every update so a
// restarted process continues from the latest poll, and the checkpoint is
// deleted once the operation finishes. The store is rescanned periodically
// to pick up operations begun by other processes.
package watcher
