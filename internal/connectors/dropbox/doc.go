// Package dropbox implements the CURSOR feed over the Dropbox API v2.
//
// A never-polled account is listed recursively from its poll folder and
// the latest cursor becomes the position. Later polls long-poll the cursor
// and, when changes are reported, follow list_folder/continue until the
// provider has no more pages. Backoff hints from the long-poll endpoint
// pause the account's requests.
package dropbox
