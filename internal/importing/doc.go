// Package importing moves a downloaded model into the canonical bucket.
//
// Files from foreign hosts are imported under a randomized key. Files that
// already live in the temp bucket are uploaded under their existing key, or
// copied server side when they are too large for a single request.
package importing
