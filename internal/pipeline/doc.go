// Package pipeline processes one model file end to end.
//
// ProcessFile downloads the file into the temp directory, runs every
// registered capability task in order and posts the accumulated scan result
// to the callback URL after each task. The local copy is removed on every
// exit path.
package pipeline
