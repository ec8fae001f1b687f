// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events cover the
// end of a comparison run (completed or failed) plus a test event used by the
// test-notify command. Per-event toggles and the min_intervals threshold are
// applied inside Publish so callers can emit unconditionally.
package notifications
