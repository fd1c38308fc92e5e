// Package config loads, normalizes, and validates casetrack configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, picks up a sibling .env file, and honours
// CASETRACK_* environment overrides. The Config type centralizes every knob the
// daemon and CLI need: where tracked tasks are persisted, how the case backend
// is reached, how often task status is polled, and where notifications go.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
