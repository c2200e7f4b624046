// Package file stores settings in cloudpoll.toml. Dotted keys map to
// TOML tables, so "poll.interval" is written as interval under [poll].
package file
