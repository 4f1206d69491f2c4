// Package config loads, normalizes, and validates storyforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STORYFORGE_OPENAI_API_KEY. The Config type centralizes every knob the worker
// and CLI need so provider credentials, retry policy and storage targets are
// discovered in one pass and passed explicitly to constructors.
package config
