// Package driving declares what the CLI and the scheduler may ask of the
// core: account management, poll cycles, settings and scheduling.
// internal/core/services implements every interface here.
package driving
