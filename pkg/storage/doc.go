// Package storage persists chat sessions: history content, history
// metadata, stored prompts, attached files and preferences.
//
// Engine is the read surface the hydration sequence consumes. Store adds
// the writes used by the HTTP API and the seed command. Lookups of a
// missing chat or prompt return (nil, nil); errors are reserved for
// backend failures.
//
// Implementations:
//   - MemoryEngine: process-local, for tests and single-node development
//   - SQLEngine: database/sql with SQLite, PostgreSQL or MySQL dialects
//   - S3Files: attached files listed from an S3 bucket, composed over
//     another Store with WithFiles
package storage
