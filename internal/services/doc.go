// Package services defines shared utilities consumed by the comparison
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stages, modes, and frame indices for
//     logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent run statuses and CLI exit codes.
//   - The ConfigError type returned by every engine constructor.
//
// Subpackages hold clients for external collaborators such as the object
// detector.
package services
