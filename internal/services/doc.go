// Package services defines shared utilities consumed by the pipeline stage
// adapters and the workflow manager.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap and Details helpers that turn
//     adapter failures into a failure kind and message recorded on the job.
//
// Use these helpers when wiring new adapters so failures read the same way
// regardless of which external service produced them.
package services
