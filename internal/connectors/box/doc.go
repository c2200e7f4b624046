// Package box implements the STREAM feed over the Box events API.
//
// A never-polled account gets the stream position "now" and asks the poll
// cycle to enumerate the folder tree from the root folder "0". Later polls
// listen to the stream for a bounded window, buffering every event and
// taking each next_stream_position as the new poll position.
//
// Requests go through an OAuth2 HTTP client (static access token or refresh
// token) and a per-account rate limiter.
package box
