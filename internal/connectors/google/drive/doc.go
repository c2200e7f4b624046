// Package drive implements the PAGETOKEN feed over the Google Drive API v3.
//
// A never-polled account takes changes.getStartPageToken and lists every
// non-trashed file. Later polls walk changes.list page by page; only an
// explicit newStartPageToken ends a cycle's pagination. Drive reports
// parents rather than paths, so the connector also resolves parents for
// the path walk and recovers the metadata of removed items.
package drive
