// Command storyforge runs the segment generation worker and the operator CLI.
//
// The worker claims generate_segment jobs, expands prompts into scripts,
// checks them against the scene bible, synthesizes, transcodes and publishes
// the clip. The remaining commands create scenes and segments, inspect and
// retry jobs, and manage scene bibles against the same store.
package main
