// Package notifications pushes job outcomes to ntfy.
//
// The worker publishes an Event with a free-form Payload; the service turns
// it into a short ntfy message. When no topic is configured the service is a
// no-op, and individual events can be switched off in config.toml so a busy
// scene does not page anyone for every finished segment.
package notifications
