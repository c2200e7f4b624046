// Package localsync materialises action records under the sync folder.
//
// Every account owns one tree, <sync_folder>/acct<accountID>, mirroring the
// provider's paths. Handlers download files, create folders and remove
// deleted items, then tell the index what changed. FolderListener watches
// the same tree and reports edits made locally.
package localsync
