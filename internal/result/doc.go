// Package result defines the ScanResult aggregate that a pipeline run builds
// up task by task and posts to the caller after every stage.
package result
