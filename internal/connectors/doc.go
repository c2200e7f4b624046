// Package connectors wires the cloud-storage connectors into a
// ConnectorFactory. Each provider lives in its own subpackage:
// box (event stream), dropbox (cursor long-poll) and google/drive
// (changes page tokens).
package connectors
