// Package checkpoint persists resume tokens of in-flight long-running
// operations so that polling survives restarts and can move between
// processes.
//
// Three backends implement Store:
//   - FileStore: one <id>.token file per operation, written atomically
//   - RedisStore: fields of a single Redis hash
//   - BlobStore: one <id>.token block blob per operation in an Azure Storage container
//
// Open selects a backend from config.CheckpointConfig.
package checkpoint
