// Package config loads, normalizes, and validates vdiff configuration data.
//
// It supplies repository defaults (including the default label vocabulary and
// segmentation windows), expands user paths, reads TOML files, and honours
// environment fallbacks such as VDIFF_DETECTOR_URL and VDIFF_NTFY_TOPIC.
//
// Validation failures are *services.ConfigError values so the CLI can refuse
// to start a comparison before any frame is decoded.
package config
