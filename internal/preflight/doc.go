// Package preflight provides readiness checks for the external services,
// binaries and filesystem paths storyforge depends on.
//
// These checks run in two contexts:
//   - The worker command calls RunAll before starting lanes and refuses to
//     start when a required check fails.
//   - The CLI "storyforge preflight" command prints every result.
//
// Provider checks are gated by the configured provider: the template expander
// and the test pattern synthesizer need no network.
package preflight
