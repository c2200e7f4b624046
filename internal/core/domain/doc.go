// Package domain holds the types every other package shares: accounts
// and their positions, raw provider changes, the action records derived
// from them, and cycle reports. It imports only the standard library.
package domain
