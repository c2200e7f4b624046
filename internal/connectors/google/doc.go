// Package google provides shared infrastructure for the Google Drive connector:
//   - token sources built from account OAuth credentials
//   - service construction
//   - error mapping from googleapi codes to poll error classes
//
// # Usage
//
//	ts, err := google.NewTokenSource(ctx, account)
//	svc, err := google.NewDriveService(ctx, ts)
//
// # OAuth2 Scopes
//
// The Drive connector needs https://www.googleapis.com/auth/drive.readonly.
package google
