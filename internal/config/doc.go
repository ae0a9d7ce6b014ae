// Package config loads, normalizes, and validates callqa configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and CALLQA_API_TOKEN. The Config type centralizes every knob
// the daemon and CLI need: data directories, the synthesis, transcription and
// analysis endpoints, the recording backend, and NATS connectivity.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
