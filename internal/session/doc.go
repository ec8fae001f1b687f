// Package session runs one comparison end to end: it resolves the engine
// components from config, opens the streams, drives the pipeline and persists
// what the run produced.
//
// A run owns a workspace directory under paths.output_dir named after its run
// id. The text and JSON reports, snapshots and the optional annotation
// sidecar are written there even when the run fails or is cancelled, so the
// partial findings stay inspectable. The run is recorded in the history
// database and a notification is published when it ends.
package session
